package arbitrage

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// StrategyFlashLoan is the registry name of the capital-constrained strategy.
const StrategyFlashLoan = "flash_loan"

// FlashLoanConfig configures the capital-constrained strategy. The requested
// notional is Strategy.MaxPositionUSD; it only applies when that exceeds
// Strategy.CapitalUSD.
type FlashLoanConfig struct {
	Strategy   domain.StrategyConfig
	Confidence float64
}

// FlashLoan wraps a cross-venue spread in a flash borrow and repay of the
// quote asset so the trade can exceed own capital.
type FlashLoan struct {
	cfg    FlashLoanConfig
	logger *slog.Logger
}

// NewFlashLoan creates a capital-constrained strategy.
func NewFlashLoan(cfg FlashLoanConfig, logger *slog.Logger) *FlashLoan {
	if cfg.Confidence <= 0 {
		cfg.Confidence = 0.85
	}
	return &FlashLoan{cfg: cfg, logger: logger.With(slog.String("arb_strategy", StrategyFlashLoan))}
}

// Name returns the strategy identifier.
func (f *FlashLoan) Name() string { return StrategyFlashLoan }

// Detect emits borrow, buy, sell, repay paths. Liquidity of the provider is
// checked by simulation, not here.
func (f *FlashLoan) Detect(ctx context.Context, snap *domain.Snapshot) ([]domain.Candidate, error) {
	notional := f.cfg.Strategy.MaxPositionUSD
	if notional <= f.cfg.Strategy.CapitalUSD || f.cfg.Confidence < f.cfg.Strategy.MinConfidence {
		return nil, nil
	}
	var out []domain.Candidate
	for _, chain := range usableChains(f.cfg.Strategy, snap) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for _, asset := range f.cfg.Strategy.ApprovedAssets {
			for _, pr := range venuePairs(snap, chain, asset) {
				if pr.spreadBps < f.cfg.Strategy.MinProfitBps {
					continue
				}
				providers := snap.FlashLoans(chain, pr.quote)
				if len(providers) == 0 {
					continue
				}
				prov := providers[0]
				loan := domain.CandidateLeg{
					Chain:      chain,
					Protocol:   prov.State.Provider,
					Instrument: prov.Instrument,
					AssetIn:    pr.quote,
					AssetOut:   pr.quote,
				}
				borrow, repay := loan, loan
				borrow.Action = domain.ActionFlashBorrow
				repay.Action = domain.ActionFlashRepay
				legs := []domain.CandidateLeg{
					borrow,
					swapLeg(pr.cheap, pr.quote, asset),
					swapLeg(pr.rich, asset, pr.quote),
					repay,
				}
				c := newCandidate(StrategyFlashLoan, asset, legs, pr.spreadBps, f.cfg.Confidence, snap)
				c.NotionalUSD = notional
				out = append(out, c)
			}
		}
	}
	return out, nil
}
