package arbitrage

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// StrategyTriangular is the registry name of the multi-hop cycle strategy.
const StrategyTriangular = "triangular"

// TriangularConfig configures the multi-hop cycle strategy.
type TriangularConfig struct {
	Strategy   domain.StrategyConfig
	Confidence float64
	// MaxPaths bounds the cycles emitted per chain and pass.
	MaxPaths int
}

// Triangular walks three-pool cycles A -> B -> C -> A on one chain whose
// product of mid rates exceeds one.
type Triangular struct {
	cfg    TriangularConfig
	logger *slog.Logger
}

// NewTriangular creates a multi-hop cycle strategy.
func NewTriangular(cfg TriangularConfig, logger *slog.Logger) *Triangular {
	if cfg.Confidence <= 0 {
		cfg.Confidence = 0.85
	}
	if cfg.MaxPaths <= 0 {
		cfg.MaxPaths = 64
	}
	return &Triangular{cfg: cfg, logger: logger.With(slog.String("arb_strategy", StrategyTriangular))}
}

// Name returns the strategy identifier.
func (t *Triangular) Name() string { return StrategyTriangular }

// Detect enumerates cycles starting at each approved asset.
func (t *Triangular) Detect(ctx context.Context, snap *domain.Snapshot) ([]domain.Candidate, error) {
	if t.cfg.Confidence < t.cfg.Strategy.MinConfidence {
		return nil, nil
	}
	var out []domain.Candidate
	for _, chain := range usableChains(t.cfg.Strategy, snap) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var pools []domain.Pool
		for _, p := range snap.Pools(chain) {
			if !p.Stale {
				pools = append(pools, p)
			}
		}

		emitted := 0
		for _, a := range t.cfg.Strategy.ApprovedAssets {
			for i, p1 := range pools {
				if !p1.State.Has(a) {
					continue
				}
				b := p1.State.Other(a)
				for j, p2 := range pools {
					if j == i || !p2.State.Has(b) || p2.State.Has(a) {
						continue
					}
					c := p2.State.Other(b)
					for k, p3 := range pools {
						if k == i || k == j || !p3.State.Has(c) || p3.State.Other(c) != a {
							continue
						}
						if emitted >= t.cfg.MaxPaths {
							break
						}
						r1, _ := p1.State.Rate(a, b)
						r2, _ := p2.State.Rate(b, c)
						r3, _ := p3.State.Rate(c, a)
						edge := (r1*r2*r3 - 1) * 10_000
						if edge < t.cfg.Strategy.MinProfitBps || edge <= 0 {
							continue
						}
						legs := []domain.CandidateLeg{
							swapLeg(p1, a, b),
							swapLeg(p2, b, c),
							swapLeg(p3, c, a),
						}
						out = append(out, newCandidate(StrategyTriangular, a, legs, edge, t.cfg.Confidence, snap))
						emitted++
					}
				}
			}
		}
		if emitted >= t.cfg.MaxPaths {
			t.logger.DebugContext(ctx, "cycle limit reached", slog.String("chain", string(chain)))
		}
	}
	return out, nil
}
