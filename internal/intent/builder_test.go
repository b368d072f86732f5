package intent_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/decision"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/domain/domaintest"
	"github.com/alanyoungcy/arbengine/internal/intent"
	"github.com/alanyoungcy/arbengine/internal/simulation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type healthMap map[domain.Chain]domain.SequencerStatus

func (h healthMap) ChainHealth(c domain.Chain) domain.SequencerStatus {
	if s, ok := h[c]; ok {
		return s
	}
	return domain.SequencerUnknown
}

func policy() domain.RiskPolicy {
	return domain.RiskPolicy{
		Strategies: map[string]domain.StrategyConfig{
			"dex_arb": {
				Enabled:        true,
				MinProfitUSD:   1,
				MinProfitBps:   1,
				MaxPositionUSD: 50_000,
				ApprovedAssets: []string{"WETH"},
				ApprovedChains: []domain.Chain{domain.ChainEthereum},
				RiskLimits:     domain.DefaultRiskLimits(),
			},
		},
		TopN:               5,
		DefaultAssetCapUSD: 1_000_000,
	}
}

func evaluation(id string) domain.EvaluationResult {
	return domain.EvaluationResult{
		CandidateID: id,
		Strategy:    "dex_arb",
		Asset:       "WETH",
		Legs: []domain.SimulatedLeg{
			{
				CandidateLeg: domain.CandidateLeg{Chain: domain.ChainEthereum, Action: domain.ActionSwap, Protocol: "uniswap_v3", Instrument: "uni-weth-usdc", AssetIn: "USDC", AssetOut: "WETH"},
				AmountIn:     50_000, AmountOut: 27.02, FeeBps: 1, SlippageBps: 0.1,
			},
			{
				CandidateLeg: domain.CandidateLeg{Chain: domain.ChainEthereum, Action: domain.ActionSwap, Protocol: "curve", Instrument: "curve-weth-usdc", AssetIn: "WETH", AssetOut: "USDC"},
				AmountIn:     27.02, AmountOut: 50_074, FeeBps: 1, SlippageBps: 0.1,
			},
		},
		GrossPnLUSD:     135,
		NetPnLUSD:       74,
		NetSpreadBps:    14.8,
		OptimalSizeUSD:  50_000,
		SuccessProb:     0.9,
		SlippageBps:     0.2,
		Costs:           domain.CostBreakdown{GasUSD: 50, ProtocolFeesUSD: 10, SlippageUSD: 1},
		Chains:          []domain.Chain{domain.ChainEthereum},
		SnapshotVersion: 42,
	}
}

func approve(t *testing.T, results ...domain.EvaluationResult) []decision.Approved {
	t.Helper()
	eng := decision.New(decision.Config{
		Policy: policy(),
		Health: healthMap{domain.ChainEthereum: domain.SequencerHealthy},
	}, discardLogger())
	out := eng.Decide(context.Background(), results)
	require.Len(t, out, len(results))
	return out
}

func fixedBuilder(health decision.HealthSource) *intent.Builder {
	return intent.NewBuilder(intent.Config{
		TTL:               12 * time.Second,
		DegradedTTLFactor: 0.5,
		Clock:             func() time.Time { return domaintest.T0 },
		IDs:               intent.SeededIDs("test"),
		Health:            health,
	}, discardLogger())
}

func TestBuild_RejectsUnapproved(t *testing.T) {
	_, err := fixedBuilder(nil).Build(decision.Approved{})
	assert.ErrorIs(t, err, domain.ErrNotApproved)
}

func TestBuild_Idempotent(t *testing.T) {
	a := approve(t, evaluation("c-1"))[0]

	first, err := fixedBuilder(nil).Build(a)
	require.NoError(t, err)
	second, err := fixedBuilder(nil).Build(a)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := fixedBuilder(nil).Build(approve(t, evaluation("c-2"))[0])
	require.NoError(t, err)
	assert.NotEqual(t, first.CorrelationID, other.CorrelationID)
}

func TestBuild_LegGuaranteesAndDeadlines(t *testing.T) {
	res := evaluation("c-1")
	ti, err := fixedBuilder(nil).Build(approve(t, res)[0])
	require.NoError(t, err)

	assert.Equal(t, domain.IntentSchemaVersion, ti.SchemaVersion)
	assert.Equal(t, 50_000.0, ti.SizeUSD)
	assert.Equal(t, 74.0, ti.ExpectedPnLUSD)
	assert.Equal(t, uint64(42), ti.SnapshotVersion)
	assert.Equal(t, domaintest.T0.Add(12*time.Second), ti.ExpiresAt)
	require.Len(t, ti.Legs, 2)

	prev := ti.CreatedAt
	for i, l := range ti.Legs {
		assert.Equal(t, res.Legs[i].AmountOut, l.MinAmountOut)
		assert.Equal(t, res.Legs[i].FeeBps, l.MaxFeeBps)
		assert.Equal(t, res.Legs[i].AmountIn, l.AmountIn)
		assert.True(t, l.Deadline.After(prev), "leg %d deadline not increasing", i)
		assert.False(t, l.Deadline.After(ti.ExpiresAt))
		prev = l.Deadline
	}
	assert.Equal(t, ti.ExpiresAt, ti.Legs[1].Deadline)
	assert.Equal(t, domaintest.T0.Add(6*time.Second), ti.Legs[0].Deadline)
}

func TestBuild_DegradedChainShortensTTL(t *testing.T) {
	a := approve(t, evaluation("c-1"))[0]
	b := fixedBuilder(healthMap{domain.ChainEthereum: domain.SequencerDegraded})

	ti, err := b.Build(a)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, ti.TTL)
	assert.Equal(t, domaintest.T0.Add(6*time.Second), ti.ExpiresAt)
	assert.Equal(t, ti.ExpiresAt, ti.Legs[len(ti.Legs)-1].Deadline)
}

func TestBuild_DexArbEndToEnd(t *testing.T) {
	snap := domaintest.Snapshot(9, domaintest.DexArbMarket(100)...)
	simCfg := simulation.DefaultConfig()
	simCfg.Clock = func() time.Time { return domaintest.T0 }
	simCfg.Strategies = policy().Strategies
	sim := simulation.New(simCfg, discardLogger())

	res, err := sim.Evaluate(context.Background(), domain.Candidate{
		ID:       "dex-1",
		Strategy: "dex_arb",
		Asset:    "WETH",
		Legs: []domain.CandidateLeg{
			{Chain: domain.ChainEthereum, Action: domain.ActionSwap, Protocol: "uniswap_v3", Instrument: "uni-weth-usdc", AssetIn: "USDC", AssetOut: "WETH"},
			{Chain: domain.ChainEthereum, Action: domain.ActionSwap, Protocol: "curve", Instrument: "curve-weth-usdc", AssetIn: "WETH", AssetOut: "USDC"},
		},
		Confidence:      0.9,
		SnapshotVersion: snap.Version,
		Snapshot:        snap,
	}, nil)
	require.NoError(t, err)
	require.Greater(t, res.NetPnLUSD, 0.0)

	ti, err := fixedBuilder(nil).Build(approve(t, res)[0])
	require.NoError(t, err)
	require.Len(t, ti.Legs, 2)
	assert.Equal(t, "USDC", ti.Legs[0].AssetIn)
	assert.Equal(t, "USDC", ti.Legs[1].AssetOut)
	assert.Greater(t, ti.Legs[1].MinAmountOut, ti.Legs[0].AmountIn)
}
