package arbitrage

import (
	"log/slog"
	"sort"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Known lists the strategy names the engine can build.
var Known = []string{StrategyCrossChain, StrategyDexArb, StrategyFlashLoan, StrategyTriangular}

// BuildOptions carries the per-strategy knobs that are not part of the
// strategy document.
type BuildOptions struct {
	Confidence   map[string]float64
	MaxTriangles int
}

// NewRegistryFromConfig registers every known strategy with its document and
// enables the ones the document enables. Known strategies without a document
// are registered disabled; documents naming an unknown strategy are logged
// and ignored.
func NewRegistryFromConfig(cfgs map[string]domain.StrategyConfig, opts BuildOptions, logger *slog.Logger) *Registry {
	reg := NewRegistry(logger)
	conf := func(name string) float64 { return opts.Confidence[name] }

	reg.Register(StrategyDexArb, NewSpread(SpreadConfig{
		Strategy:   cfgs[StrategyDexArb],
		Confidence: conf(StrategyDexArb),
	}, logger))
	reg.Register(StrategyCrossChain, NewCrossChain(CrossChainConfig{
		Strategy:   cfgs[StrategyCrossChain],
		Confidence: conf(StrategyCrossChain),
	}, logger))
	reg.Register(StrategyTriangular, NewTriangular(TriangularConfig{
		Strategy:   cfgs[StrategyTriangular],
		Confidence: conf(StrategyTriangular),
		MaxPaths:   opts.MaxTriangles,
	}, logger))
	reg.Register(StrategyFlashLoan, NewFlashLoan(FlashLoanConfig{
		Strategy:   cfgs[StrategyFlashLoan],
		Confidence: conf(StrategyFlashLoan),
	}, logger))

	for _, name := range Known {
		cfg, ok := cfgs[name]
		_ = reg.SetEnabled(name, ok && cfg.Enabled)
	}

	var unknown []string
	for name := range cfgs {
		if _, err := reg.Get(name); err != nil {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		reg.logger.Warn("ignoring unknown strategy documents", slog.Any("names", unknown))
	}
	return reg
}
