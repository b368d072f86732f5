package arbitrage

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// StrategyCrossChain is the registry name of the bridge spread strategy.
const StrategyCrossChain = "cross_chain"

// CrossChainConfig configures the bridge spread strategy.
type CrossChainConfig struct {
	Strategy   domain.StrategyConfig
	Confidence float64
}

// CrossChain buys an asset on the chain where it is cheapest against a
// stablecoin, bridges it, and sells it where it is richer.
type CrossChain struct {
	cfg    CrossChainConfig
	logger *slog.Logger
}

// NewCrossChain creates a bridge spread strategy.
func NewCrossChain(cfg CrossChainConfig, logger *slog.Logger) *CrossChain {
	if cfg.Confidence <= 0 {
		cfg.Confidence = 0.8
	}
	return &CrossChain{cfg: cfg, logger: logger.With(slog.String("arb_strategy", StrategyCrossChain))}
}

// Name returns the strategy identifier.
func (c *CrossChain) Name() string { return StrategyCrossChain }

// Detect compares stablecoin prices of each approved asset across every
// ordered chain pair that has an active bridge route.
func (c *CrossChain) Detect(ctx context.Context, snap *domain.Snapshot) ([]domain.Candidate, error) {
	if c.cfg.Confidence < c.cfg.Strategy.MinConfidence {
		return nil, nil
	}
	chains := usableChains(c.cfg.Strategy, snap)

	var out []domain.Candidate
	for _, asset := range c.cfg.Strategy.ApprovedAssets {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if domain.IsStable(asset) {
			continue
		}
		for _, src := range chains {
			buy, pSrc, ok := stablePool(snap, src, asset)
			if !ok {
				continue
			}
			for _, dst := range chains {
				if dst == src {
					continue
				}
				sell, pDst, ok := stablePool(snap, dst, asset)
				if !ok || pDst <= pSrc {
					continue
				}
				bps := spreadBps(pSrc, pDst)
				if bps < c.cfg.Strategy.MinProfitBps {
					continue
				}
				routes := snap.Bridges(src, dst, asset)
				if len(routes) == 0 {
					continue
				}
				route := routes[0]
				legs := []domain.CandidateLeg{
					swapLeg(buy, buy.State.Other(asset), asset),
					{
						Chain:      src,
						Action:     domain.ActionBridge,
						Protocol:   route.State.Protocol,
						Instrument: route.Instrument,
						AssetIn:    asset,
						AssetOut:   asset,
						DestChain:  dst,
					},
					swapLeg(sell, asset, sell.State.Other(asset)),
				}
				out = append(out, newCandidate(StrategyCrossChain, asset, legs, bps, c.cfg.Confidence, snap))
			}
		}
	}
	return out, nil
}
