package arbitrage

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// StrategyDexArb is the registry name of the cross-venue spread strategy.
const StrategyDexArb = "dex_arb"

// SpreadConfig configures the cross-venue spread strategy.
type SpreadConfig struct {
	Strategy   domain.StrategyConfig
	Confidence float64
}

// Spread finds the same pair quoted at different prices by two venues on one
// chain: buy on the cheaper pool, sell on the richer one.
type Spread struct {
	cfg    SpreadConfig
	logger *slog.Logger
}

// NewSpread creates a cross-venue spread strategy.
func NewSpread(cfg SpreadConfig, logger *slog.Logger) *Spread {
	if cfg.Confidence <= 0 {
		cfg.Confidence = 0.9
	}
	return &Spread{cfg: cfg, logger: logger.With(slog.String("arb_strategy", StrategyDexArb))}
}

// Name returns the strategy identifier.
func (s *Spread) Name() string { return StrategyDexArb }

// Detect pairs every two usable pools of the same pair on different protocols
// and emits one candidate per pair whose gross spread reaches MinProfitBps.
func (s *Spread) Detect(ctx context.Context, snap *domain.Snapshot) ([]domain.Candidate, error) {
	if s.cfg.Confidence < s.cfg.Strategy.MinConfidence {
		return nil, nil
	}
	var out []domain.Candidate
	for _, chain := range usableChains(s.cfg.Strategy, snap) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for _, asset := range s.cfg.Strategy.ApprovedAssets {
			for _, pr := range venuePairs(snap, chain, asset) {
				if pr.spreadBps < s.cfg.Strategy.MinProfitBps {
					continue
				}
				legs := []domain.CandidateLeg{
					swapLeg(pr.cheap, pr.quote, asset),
					swapLeg(pr.rich, asset, pr.quote),
				}
				out = append(out, newCandidate(StrategyDexArb, asset, legs, pr.spreadBps, s.cfg.Confidence, snap))
			}
		}
	}
	if len(out) > 0 {
		s.logger.DebugContext(ctx, "spread candidates",
			slog.Int("count", len(out)), slog.Uint64("snapshot_version", snap.Version))
	}
	return out, nil
}

type venuePair struct {
	cheap, rich domain.Pool
	quote       string
	spreadBps   float64
}

// venuePairs returns every pool pair on chain quoting asset against the same
// counter asset on different protocols, oriented cheap to rich.
func venuePairs(snap *domain.Snapshot, chain domain.Chain, asset string) []venuePair {
	var pools []domain.Pool
	for _, p := range snap.Pools(chain) {
		if !p.Stale && p.State.Has(asset) {
			pools = append(pools, p)
		}
	}

	var out []venuePair
	for i := 0; i < len(pools); i++ {
		for j := i + 1; j < len(pools); j++ {
			a, b := pools[i], pools[j]
			quote := a.State.Other(asset)
			if b.State.Other(asset) != quote || a.State.Protocol == b.State.Protocol {
				continue
			}
			pa, _ := a.State.Rate(asset, quote)
			pb, _ := b.State.Rate(asset, quote)
			if pa == pb {
				continue
			}
			if pa > pb {
				a, b, pa, pb = b, a, pb, pa
			}
			out = append(out, venuePair{cheap: a, rich: b, quote: quote, spreadBps: spreadBps(pa, pb)})
		}
	}
	return out
}
