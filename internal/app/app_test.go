package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/app"
	"github.com/alanyoungcy/arbengine/internal/arbitrage"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/domain/domaintest"
	"github.com/alanyoungcy/arbengine/internal/ingest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func replayConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Mode = "replay"
	cfg.Feedback.DefaultSuccessRate = 1
	cfg.Intent.IDSeed = "replay-test"
	return &cfg
}

func strategies() map[string]domain.StrategyConfig {
	return map[string]domain.StrategyConfig{
		arbitrage.StrategyDexArb: {
			Name:           arbitrage.StrategyDexArb,
			Enabled:        true,
			MinProfitUSD:   1,
			MinProfitBps:   5,
			MaxPositionUSD: 50_000,
			ApprovedAssets: []string{"WETH"},
			ApprovedChains: []domain.Chain{domain.ChainEthereum},
			RiskLimits:     domain.DefaultRiskLimits(),
		},
	}
}

func ndjson(t *testing.T, features ...domain.Feature) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, f := range features {
		require.NoError(t, enc.Encode(f))
	}
	return &buf
}

func TestReplay_EmitsIntents(t *testing.T) {
	logger := discardLogger()
	src := ingest.NewReaderSource("fixture", ndjson(t, domaintest.DexArbMarket(100)...), logger)

	sum, err := app.Replay(context.Background(), replayConfig(), strategies(), nil, src, logger)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Features)
	assert.Equal(t, 1, sum.Steps)
	require.NotEmpty(t, sum.Intents)
	ti := sum.Intents[0]
	assert.Equal(t, arbitrage.StrategyDexArb, ti.Strategy)
	assert.Equal(t, "WETH", ti.Asset)
	assert.Positive(t, ti.ExpectedPnLUSD)
	assert.LessOrEqual(t, ti.SizeUSD, 50_000.0)
}

func TestReplay_Deterministic(t *testing.T) {
	logger := discardLogger()
	run := func() []domain.TradeIntent {
		src := ingest.NewReaderSource("fixture", ndjson(t, domaintest.DexArbMarket(100)...), logger)
		sum, err := app.Replay(context.Background(), replayConfig(), strategies(), nil, src, logger)
		require.NoError(t, err)
		return sum.Intents
	}

	first, second := run(), run()
	require.NotEmpty(t, first)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].CorrelationID, second[i].CorrelationID)
		assert.Equal(t, first[i].SizeUSD, second[i].SizeUSD)
		assert.Equal(t, first[i].CreatedAt, second[i].CreatedAt)
	}
}

func TestReplay_StepsOnIntervalCrossing(t *testing.T) {
	logger := discardLogger()
	cfg := replayConfig()
	cfg.Detector.Interval.Duration = time.Second

	early := domaintest.DexArbMarket(100)
	late := domaintest.DexArbMarket(101)
	for i := range late {
		late[i].Timestamp = domaintest.T0.Add(2 * time.Second)
	}
	src := ingest.NewReaderSource("fixture", ndjson(t, append(early, late...)...), logger)

	sum, err := app.Replay(context.Background(), cfg, strategies(), nil, src, logger)
	require.NoError(t, err)
	assert.Equal(t, 8, sum.Features)
	assert.Equal(t, 2, sum.Steps)
}

func TestReplay_NoStrategiesEnabled(t *testing.T) {
	logger := discardLogger()
	docs := strategies()
	doc := docs[arbitrage.StrategyDexArb]
	doc.Enabled = false
	docs[arbitrage.StrategyDexArb] = doc

	src := ingest.NewReaderSource("fixture", ndjson(t, domaintest.DexArbMarket(100)...), logger)
	sum, err := app.Replay(context.Background(), replayConfig(), docs, nil, src, logger)
	require.NoError(t, err)
	assert.Empty(t, sum.Intents)
}

func TestReplay_Cancelled(t *testing.T) {
	logger := discardLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := ingest.NewReaderSource("fixture", ndjson(t, domaintest.DexArbMarket(100)...), logger)
	_, err := app.Replay(ctx, replayConfig(), strategies(), nil, src, logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWire_ReplayNeedsNothingExternal(t *testing.T) {
	deps, cleanup, err := app.Wire(context.Background(), replayConfig(), discardLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.IntentStore)
	assert.Empty(t, deps.CalibrationCaches)
	require.NotNil(t, deps.Notifier)
	assert.False(t, deps.Notifier.Enabled())
}

func TestBuildEngine(t *testing.T) {
	docs := strategies()
	docs[arbitrage.StrategyCrossChain] = domain.StrategyConfig{
		Name:           arbitrage.StrategyCrossChain,
		Enabled:        true,
		ApprovedAssets: []string{"USDC"},
		ApprovedChains: []domain.Chain{domain.ChainArbitrum, domain.ChainEthereum},
		RiskLimits:     domain.DefaultRiskLimits(),
	}

	eng, err := app.BuildEngine(replayConfig(), docs, nil, app.EngineIO{}, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, []domain.Chain{domain.ChainArbitrum, domain.ChainEthereum}, eng.Chains)
	assert.Nil(t, eng.Checkpointer)
	assert.Nil(t, eng.Archiver)
	assert.Nil(t, eng.Alerts)

	status, ok := eng.Status().(map[string]any)
	require.True(t, ok)
	assert.Contains(t, status, "pipeline")
	assert.Contains(t, status, "exposure")
}
