// Package simulation prices candidates against their snapshot: AMM slippage
// from depth curves, gas in USD, bridge fees with a latency penalty, and hard
// flash-loan liquidity limits, then picks the size that maximises net PnL.
package simulation

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Config tunes the cost models and the size search.
type Config struct {
	DefaultNotionalUSD float64
	MinSizeUSD         float64
	MaxSizeUSD         float64
	RefineSteps        int
	MaxSnapshotAge     time.Duration
	Timeout            time.Duration
	CapitalCostAPR     float64
	DefaultNativeAsset string
	GasUnits           GasUnits
	Strategies         map[string]domain.StrategyConfig
	Clock              func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultNotionalUSD: 100_000,
		MinSizeUSD:         1_000,
		MaxSizeUSD:         50_000_000,
		RefineSteps:        12,
		MaxSnapshotAge:     30 * time.Second,
		Timeout:            250 * time.Millisecond,
		CapitalCostAPR:     0.10,
		DefaultNativeAsset: "WETH",
		GasUnits:           DefaultGasUnits(),
	}
}

// Engine evaluates candidates. It holds no mutable state and is safe for
// concurrent use by the simulation workers.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an engine. Zero fields of cfg take their defaults.
func New(cfg Config, logger *slog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.DefaultNotionalUSD <= 0 {
		cfg.DefaultNotionalUSD = def.DefaultNotionalUSD
	}
	if cfg.MinSizeUSD <= 0 {
		cfg.MinSizeUSD = def.MinSizeUSD
	}
	if cfg.MaxSizeUSD <= 0 {
		cfg.MaxSizeUSD = def.MaxSizeUSD
	}
	if cfg.RefineSteps <= 0 {
		cfg.RefineSteps = def.RefineSteps
	}
	if cfg.MaxSnapshotAge <= 0 {
		cfg.MaxSnapshotAge = def.MaxSnapshotAge
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CapitalCostAPR < 0 {
		cfg.CapitalCostAPR = 0
	}
	if cfg.DefaultNativeAsset == "" {
		cfg.DefaultNativeAsset = def.DefaultNativeAsset
	}
	if cfg.GasUnits == (GasUnits{}) {
		cfg.GasUnits = def.GasUnits
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine{cfg: cfg, logger: logger.With(slog.String("component", "simulation"))}
}

// Evaluate simulates c against its snapshot with the given calibration. It
// returns a *domain.SimError on failure and never substitutes defaults for
// missing state.
func (e *Engine) Evaluate(ctx context.Context, c domain.Candidate, calib *domain.CalibrationState) (domain.EvaluationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if c.Snapshot == nil {
		return domain.EvaluationResult{}, domain.MissingFeature("", "", "candidate carries no snapshot")
	}
	now := e.cfg.Clock()
	if age := c.Snapshot.Age(now); age > e.cfg.MaxSnapshotAge {
		return domain.EvaluationResult{}, domain.StaleSnapshot("", "", "snapshot age "+age.String())
	}
	if calib == nil {
		calib = domain.NewCalibrationState(1)
	}

	m, err := e.resolve(ctx, c, calib)
	if err != nil {
		return domain.EvaluationResult{}, err
	}
	if ctx.Err() != nil {
		return domain.EvaluationResult{}, domain.MissingFeature("", "", "simulation deadline exceeded")
	}

	lower := math.Min(e.cfg.MinSizeUSD, m.upperUSD)
	best := m.optimalSize(e.cfg.DefaultNotionalUSD, lower, m.upperUSD, e.cfg.CapitalCostAPR, e.cfg.RefineSteps)

	res := domain.EvaluationResult{
		CandidateID:       c.ID,
		Strategy:          c.Strategy,
		Asset:             c.Asset,
		Legs:              m.simulatedLegs(best),
		GrossPnLUSD:       best.gross,
		NetPnLUSD:         best.net,
		OptimalSizeUSD:    best.sizeUSD,
		SuccessProb:       successProb(calib.SuccessRate(c.Strategy), c.Confidence),
		SlippageBps:       best.slipBps,
		BridgeLatencySecs: m.latencyS,
		Costs:             best.costs,
		Chains:            c.Chains(),
		SnapshotVersion:   c.SnapshotVersion,
		EvaluatedAt:       now,
	}
	if best.sizeUSD > 0 {
		res.NetSpreadBps = best.net / best.sizeUSD * 10_000
	}

	e.logger.DebugContext(ctx, "candidate evaluated",
		slog.String("candidate_id", c.ID),
		slog.String("strategy", c.Strategy),
		slog.Float64("size_usd", res.OptimalSizeUSD),
		slog.Float64("net_pnl_usd", res.NetPnLUSD),
		slog.Float64("net_bps", res.NetSpreadBps),
	)
	return res, nil
}

// successProb is the strategy's calibrated success rate scaled by detector
// confidence. A candidate without a confidence cannot succeed.
func successProb(rate, confidence float64) float64 {
	p := rate * confidence
	if math.IsNaN(p) || p <= 0 {
		return 0
	}
	return math.Min(1, p)
}

// simulatedLegs walks the path in asset units at the chosen size. Each leg's
// output is its input converted at the mid rate net of fee and slippage.
func (m *pathModel) simulatedLegs(t trial) []domain.SimulatedLeg {
	out := make([]domain.SimulatedLeg, len(m.legs))
	amt := 0.0
	if m.startUSD > 0 {
		amt = t.sizeUSD / m.startUSD
	}
	loan, loanFee := 0.0, 0.0

	for i, lm := range m.legs {
		lc := t.legCosts[i]
		sl := domain.SimulatedLeg{
			CandidateLeg: lm.leg,
			AmountIn:     amt,
			FeeBps:       lc.feeBps,
			SlippageBps:  lc.slipBps,
			GasUSD:       lm.gasUSD,
			CostUSD:      lc.costUSD,
		}
		switch lm.leg.Action {
		case domain.ActionSwap:
			sl.AmountOut = amt * lm.rate * (1 - lc.feeBps/10_000) * (1 - lc.slipBps/10_000)
		case domain.ActionBridge:
			sl.AmountOut = amt * (1 - lc.feeBps/10_000)
		case domain.ActionFlashBorrow:
			loan, loanFee = amt, lc.feeBps
			sl.AmountOut = amt
		case domain.ActionFlashRepay:
			sl.AmountIn = loan * (1 + loanFee/10_000)
			sl.AmountOut = math.Max(0, amt-sl.AmountIn)
		}
		out[i] = sl
		if lm.leg.Action != domain.ActionFlashRepay {
			amt = sl.AmountOut
		}
	}
	return out
}
