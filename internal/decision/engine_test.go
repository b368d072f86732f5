package decision_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/decision"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/domain/domaintest"
	"github.com/alanyoungcy/arbengine/internal/state"
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

func allHealthy() healthMap {
	return healthMap{
		domain.ChainEthereum: domain.SequencerHealthy,
		domain.ChainArbitrum: domain.SequencerHealthy,
	}
}

func testPolicy() domain.RiskPolicy {
	return domain.RiskPolicy{
		Strategies: map[string]domain.StrategyConfig{
			"dex_arb": {
				Name:           "dex_arb",
				Enabled:        true,
				MinProfitUSD:   10,
				MinProfitBps:   5,
				MaxPositionUSD: 1_000_000,
				ApprovedAssets: []string{"WETH", "WBTC"},
				ApprovedChains: []domain.Chain{domain.ChainEthereum, domain.ChainArbitrum},
				RiskLimits:     domain.DefaultRiskLimits(),
			},
		},
		TopN:               10,
		DefaultAssetCapUSD: 1_000_000,
		ExposureWeight:     0.5,
		ExposureNormUSD:    1_000_000,
	}
}

// result builds a passing evaluation: 20 bps net, 5 bps slippage, gas at
// 10% of gross, success 0.9.
func result(id, asset string, netUSD, sizeUSD float64, version uint64, chains ...domain.Chain) domain.EvaluationResult {
	if len(chains) == 0 {
		chains = []domain.Chain{domain.ChainEthereum}
	}
	gross := netUSD / 0.8
	var legs []domain.SimulatedLeg
	for _, c := range chains {
		legs = append(legs, domain.SimulatedLeg{CandidateLeg: domain.CandidateLeg{Chain: c, Action: domain.ActionSwap}})
	}
	return domain.EvaluationResult{
		CandidateID:     id,
		Strategy:        "dex_arb",
		Asset:           asset,
		Legs:            legs,
		GrossPnLUSD:     gross,
		NetPnLUSD:       netUSD,
		NetSpreadBps:    netUSD / sizeUSD * 10_000,
		OptimalSizeUSD:  sizeUSD,
		SuccessProb:     0.9,
		SlippageBps:     5,
		Costs:           domain.CostBreakdown{GasUSD: gross * 0.1, ProtocolFeesUSD: gross * 0.1},
		Chains:          chains,
		SnapshotVersion: version,
	}
}

func newEngine(pol domain.RiskPolicy, health decision.HealthSource) *decision.Engine {
	return decision.New(decision.Config{Policy: pol, Health: health}, discardLogger())
}

func ids(approved []decision.Approved) []string {
	out := make([]string, len(approved))
	for i, a := range approved {
		out[i] = a.Result().CandidateID
	}
	return out
}

func TestFilter_Rejections(t *testing.T) {
	base := result("c", "WETH", 100, 50_000, 1)
	tests := []struct {
		name   string
		mutate func(*domain.EvaluationResult)
		health healthMap
		reason string
	}{
		{"passes", func(*domain.EvaluationResult) {}, nil, ""},
		{"unknown strategy", func(r *domain.EvaluationResult) { r.Strategy = "nope" }, nil, decision.ReasonUnknownStrategy},
		{"min profit usd", func(r *domain.EvaluationResult) { r.NetPnLUSD = 9.99 }, nil, decision.ReasonMinProfitUSD},
		{"min profit bps", func(r *domain.EvaluationResult) { r.NetSpreadBps = 4 }, nil, decision.ReasonMinProfitBps},
		{"max slippage", func(r *domain.EvaluationResult) { r.SlippageBps = 101 }, nil, decision.ReasonMaxSlippage},
		{"min success prob", func(r *domain.EvaluationResult) { r.SuccessProb = 0.79 }, nil, decision.ReasonMinSuccessProb},
		{"max gas pct", func(r *domain.EvaluationResult) { r.Costs.GasUSD = r.GrossPnLUSD * 0.6 }, nil, decision.ReasonMaxGasPct},
		{"max bridge latency", func(r *domain.EvaluationResult) { r.BridgeLatencySecs = 301 }, nil, decision.ReasonMaxBridgeLatency},
		{"max position", func(r *domain.EvaluationResult) { r.OptimalSizeUSD = 1_000_001 }, nil, decision.ReasonMaxPosition},
		{"degraded chain", func(*domain.EvaluationResult) {}, healthMap{domain.ChainEthereum: domain.SequencerDegraded}, decision.ReasonChainHealth},
		{"unknown health", func(*domain.EvaluationResult) {}, healthMap{}, decision.ReasonChainHealth},
		{"asset whitelist", func(r *domain.EvaluationResult) { r.Asset = "PEPE" }, nil, decision.ReasonAsset},
		{"chain whitelist", func(r *domain.EvaluationResult) {
			r.Chains = []domain.Chain{domain.ChainBase}
		}, healthMap{domain.ChainBase: domain.SequencerHealthy}, decision.ReasonChain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			health := tt.health
			if health == nil {
				health = allHealthy()
			}
			res := base
			res.Chains = append([]domain.Chain(nil), base.Chains...)
			tt.mutate(&res)

			err := newEngine(testPolicy(), health).Filter(res)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var rej *decision.RejectError
			require.True(t, errors.As(err, &rej), "expected RejectError, got %v", err)
			assert.Equal(t, tt.reason, rej.Reason)
		})
	}
}

func TestFilter_ParsedStrategyDocument(t *testing.T) {
	docs, err := config.ParseStrategies([]byte(`
dex_arb:
  enabled: true
  min_profit_usd: 10
  max_position_usd: 60000
  approved_assets: [weth]
  approved_chains: [ethereum]
`))
	require.NoError(t, err)
	cfg := config.Defaults()
	eng := newEngine(cfg.RiskPolicy(docs), allHealthy())

	assert.NoError(t, eng.Filter(result("fits", "WETH", 100, 50_000, 1)))

	var rej *decision.RejectError
	require.ErrorAs(t, eng.Filter(result("too-big", "WETH", 140, 70_000, 1)), &rej)
	assert.Equal(t, decision.ReasonMaxPosition, rej.Reason)
}

func TestFilter_DisabledStrategy(t *testing.T) {
	pol := testPolicy()
	sc := pol.Strategies["dex_arb"]
	sc.Enabled = false
	pol.Strategies["dex_arb"] = sc

	err := newEngine(pol, allHealthy()).Filter(result("c", "WETH", 100, 50_000, 1))
	var rej *decision.RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, decision.ReasonDisabled, rej.Reason)
}

func TestFilter_HealthExemptChainWithoutReport(t *testing.T) {
	pol := testPolicy()
	pol.HealthExemptChains = []domain.Chain{domain.ChainEthereum}
	eng := newEngine(pol, healthMap{})
	assert.NoError(t, eng.Filter(result("c", "WETH", 100, 50_000, 1)))

	// Exemption covers missing reports only.
	eng = newEngine(pol, healthMap{domain.ChainEthereum: domain.SequencerDown})
	assert.Error(t, eng.Filter(result("c", "WETH", 100, 50_000, 1)))
}

func TestDecide_ApprovedSatisfiesEveryThreshold(t *testing.T) {
	pol := testPolicy()
	var batch []domain.EvaluationResult
	for i := range 40 {
		r := result(fmt.Sprintf("c-%02d", i), "WETH", float64(50+i*30), float64(10_000+i*20_000), uint64(i%3+1))
		r.SlippageBps = float64(i * 4)
		r.SuccessProb = 0.7 + float64(i%4)*0.1
		r.BridgeLatencySecs = float64(i * 10)
		batch = append(batch, r)
	}
	pol.TopN = 0
	pol.DefaultAssetCapUSD = 0

	approved := newEngine(pol, allHealthy()).Decide(context.Background(), batch)
	require.NotEmpty(t, approved)

	sc := pol.Strategies["dex_arb"]
	for _, a := range approved {
		r := a.Result()
		assert.GreaterOrEqual(t, r.NetPnLUSD, sc.MinProfitUSD, r.CandidateID)
		assert.GreaterOrEqual(t, r.NetSpreadBps, sc.MinProfitBps, r.CandidateID)
		assert.LessOrEqual(t, r.SlippageBps, sc.RiskLimits.MaxSlippageBps, r.CandidateID)
		assert.GreaterOrEqual(t, r.SuccessProb, sc.RiskLimits.MinSuccessProb, r.CandidateID)
		assert.LessOrEqual(t, r.GasPct(), sc.RiskLimits.MaxGasPct, r.CandidateID)
		assert.LessOrEqual(t, r.BridgeLatencySecs, sc.RiskLimits.MaxBridgeLatencySecs, r.CandidateID)
		assert.LessOrEqual(t, r.OptimalSizeUSD, sc.MaxPositionUSD, r.CandidateID)
	}
	for i := 1; i < len(approved); i++ {
		assert.GreaterOrEqual(t, approved[i-1].Score(), approved[i].Score())
	}
}

func TestDecide_TieBreakBySnapshotVersionThenID(t *testing.T) {
	batch := []domain.EvaluationResult{
		result("b", "WETH", 100, 50_000, 5),
		result("c", "WBTC", 100, 50_000, 3),
		result("a", "WBTC", 100, 50_000, 5),
	}
	approved := newEngine(testPolicy(), allHealthy()).Decide(context.Background(), batch)
	assert.Equal(t, []string{"c", "a", "b"}, ids(approved))
	assert.Equal(t, 1, approved[0].Rank())
}

func TestDecide_TopN(t *testing.T) {
	pol := testPolicy()
	pol.TopN = 2
	batch := []domain.EvaluationResult{
		result("low", "WETH", 20, 10_000, 1),
		result("high", "WETH", 300, 100_000, 1),
		result("mid", "WBTC", 150, 60_000, 1),
	}
	approved := newEngine(pol, allHealthy()).Decide(context.Background(), batch)
	assert.Equal(t, []string{"high", "mid"}, ids(approved))
}

func TestDecide_ExposureCapSkipsNotRejects(t *testing.T) {
	pol := testPolicy()
	pol.AssetCapsUSD = map[string]float64{"WETH": 100_000}
	batch := []domain.EvaluationResult{
		result("weth-1", "WETH", 400, 80_000, 1),
		result("weth-2", "WETH", 300, 50_000, 1),
		result("weth-3", "WETH", 30, 15_000, 1),
		result("wbtc-1", "WBTC", 100, 50_000, 1),
	}
	eng := newEngine(pol, allHealthy())
	approved := eng.Decide(context.Background(), batch)

	assert.Equal(t, []string{"weth-1", "wbtc-1", "weth-3"}, ids(approved))
	assert.Equal(t, uint64(1), eng.Stats().Skipped)
}

func TestDecide_CapCountsOpenExposure(t *testing.T) {
	pol := testPolicy()
	pol.AssetCapsUSD = map[string]float64{"WETH": 100_000}
	book := decision.NewExposureBook()
	book.Open("intent-1", "WETH", 70_000)

	eng := decision.New(decision.Config{Policy: pol, Health: allHealthy(), Book: book}, discardLogger())
	approved := eng.Decide(context.Background(), []domain.EvaluationResult{result("weth", "WETH", 300, 50_000, 1)})
	assert.Empty(t, approved)

	book.Release("intent-1")
	approved = eng.Decide(context.Background(), []domain.EvaluationResult{result("weth", "WETH", 300, 50_000, 1)})
	assert.Len(t, approved, 1)
}

func TestDecide_ConcentrationLowersScore(t *testing.T) {
	pol := testPolicy()
	pol.ConcentrationWeight = 1
	single := result("single", "WETH", 100, 50_000, 1, domain.ChainEthereum)
	spread := result("spread", "WETH", 100, 50_000, 1, domain.ChainEthereum, domain.ChainArbitrum)

	assert.Greater(t, decision.RiskScore(&pol, single), decision.RiskScore(&pol, spread))
	assert.Less(t, decision.Score(&pol, single), decision.Score(&pol, spread))
}

// A sequencer going down after simulation excludes the already-profitable
// evaluation at decision time.
func TestDecide_SequencerDownMidPipeline(t *testing.T) {
	store := state.New(state.Config{}, discardLogger())
	_, err := store.Update(domaintest.Sequencer(domain.ChainArbitrum, domain.SequencerHealthy, 10))
	require.NoError(t, err)
	_, err = store.Update(domaintest.Sequencer(domain.ChainEthereum, domain.SequencerHealthy, 10))
	require.NoError(t, err)

	eng := decision.New(decision.Config{Policy: testPolicy(), Health: store, Invalidation: store}, discardLogger())
	res := result("arb-1", "WETH", 200, 50_000, store.Version(), domain.ChainEthereum, domain.ChainArbitrum)
	other := result("eth-1", "WETH", 100, 50_000, store.Version(), domain.ChainEthereum)
	require.NoError(t, eng.Filter(res))

	_, err = store.Update(domaintest.Sequencer(domain.ChainArbitrum, domain.SequencerDown, 11))
	require.NoError(t, err)

	approved := eng.Decide(context.Background(), []domain.EvaluationResult{res, other})
	assert.Equal(t, []string{"eth-1"}, ids(approved))
}

func TestDecide_ReorgInvalidatesResult(t *testing.T) {
	store := state.New(state.Config{}, discardLogger())
	_, err := store.Update(domaintest.Sequencer(domain.ChainEthereum, domain.SequencerHealthy, 10))
	require.NoError(t, err)
	_, err = store.Update(domaintest.Gas(domain.ChainEthereum, 20, 1, 10))
	require.NoError(t, err)
	version := store.Version()

	_, err = store.Update(domaintest.Gas(domain.ChainEthereum, 20, 1, 9))
	require.ErrorIs(t, err, domain.ErrReorg)
	_, err = store.Update(domaintest.Sequencer(domain.ChainEthereum, domain.SequencerHealthy, 10))
	require.NoError(t, err)

	eng := decision.New(decision.Config{Policy: testPolicy(), Health: store, Invalidation: store}, discardLogger())
	err = eng.Filter(result("c", "WETH", 100, 50_000, version))
	var rej *decision.RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, decision.ReasonInvalidated, rej.Reason)
}

func TestApproved_ZeroValue(t *testing.T) {
	var a decision.Approved
	assert.True(t, a.IsZero())
}
