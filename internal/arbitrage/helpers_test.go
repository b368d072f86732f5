package arbitrage_test

import (
	"io"
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strategyConfig(assets []string, chains ...domain.Chain) domain.StrategyConfig {
	return domain.StrategyConfig{
		Enabled:        true,
		MinProfitUSD:   1,
		MinProfitBps:   5,
		MaxPositionUSD: 50_000,
		ApprovedAssets: assets,
		ApprovedChains: chains,
		RiskLimits:     domain.DefaultRiskLimits(),
	}
}
