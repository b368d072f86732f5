package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
)

const strategiesYAML = `
dex_arb:
  enabled: true
  min_profit_usd: 25
  min_profit_bps: 8
  max_position_usd: 500000
  approved_assets: [weth, WBTC]
  approved_chains: [Ethereum, arbitrum]
  risk_limits:
    max_slippage_bps: 30
    max_gas_pct: 40
    max_bridge_latency_secs: 0
    min_success_prob: 0.85
cross_chain:
  enabled: false
  min_profit_usd: 50
  risk_limits:
    max_bridge_latency_secs: 900
flash_loan:
  enabled: true
  min_profit_usd: 100
  capital_usd: 0
  max_position_usd: 2000000
  min_confidence: 0.7
  approved_assets: [USDC]
  approved_chains: [ethereum]
`

func TestParseStrategies(t *testing.T) {
	docs, err := config.ParseStrategies([]byte(strategiesYAML))
	require.NoError(t, err)
	require.Len(t, docs, 3)

	dex := docs["dex_arb"]
	assert.Equal(t, "dex_arb", dex.Name)
	assert.True(t, dex.Enabled)
	assert.Equal(t, []string{"WETH", "WBTC"}, dex.ApprovedAssets)
	assert.Equal(t, []domain.Chain{domain.ChainEthereum, domain.ChainArbitrum}, dex.ApprovedChains)
	assert.InDelta(t, 30, dex.RiskLimits.MaxSlippageBps, 1e-9)
	assert.InDelta(t, 0.85, dex.RiskLimits.MinSuccessProb, 1e-9)
	assert.Zero(t, dex.RiskLimits.MaxBridgeLatencySecs)

	// Partial risk block keeps the defaults for omitted limits.
	cc := docs["cross_chain"]
	def := domain.DefaultRiskLimits()
	assert.InDelta(t, 900, cc.RiskLimits.MaxBridgeLatencySecs, 1e-9)
	assert.InDelta(t, def.MaxSlippageBps, cc.RiskLimits.MaxSlippageBps, 1e-9)
	assert.InDelta(t, def.MinSuccessProb, cc.RiskLimits.MinSuccessProb, 1e-9)

	// Omitted block takes every default.
	assert.Equal(t, def, docs["flash_loan"].RiskLimits)
	assert.InDelta(t, 0.7, docs["flash_loan"].MinConfidence, 1e-9)
}

func TestParseStrategiesRejectsInvalid(t *testing.T) {
	_, err := config.ParseStrategies([]byte(`
dex_arb:
  enabled: true
  min_profit_usd: -1
  approved_assets: [WETH]
  approved_chains: [ethereum]
  risk_limits:
    min_success_prob: 1.5
triangular:
  enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dex_arb: min_profit_usd")
	assert.Contains(t, err.Error(), "dex_arb: risk_limits.min_success_prob")
	assert.Contains(t, err.Error(), "triangular: enabled strategy needs")
}

func TestParseStrategiesRequiresPositionCap(t *testing.T) {
	_, err := config.ParseStrategies([]byte(`
dex_arb:
  enabled: true
  approved_assets: [WETH]
  approved_chains: [ethereum]
cross_chain:
  enabled: false
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dex_arb: enabled strategy needs max_position_usd > 0")
	assert.NotContains(t, err.Error(), "cross_chain")
}

func TestParseStrategiesMalformed(t *testing.T) {
	_, err := config.ParseStrategies([]byte("dex_arb: [not, a, mapping"))
	assert.Error(t, err)
}

func TestLoadStrategiesMissingFile(t *testing.T) {
	_, err := config.LoadStrategies("/nonexistent/strategies.yaml")
	assert.Error(t, err)
}

func TestRiskPolicyCarriesDocuments(t *testing.T) {
	docs, err := config.ParseStrategies([]byte(strategiesYAML))
	require.NoError(t, err)
	cfg := config.Defaults()
	pol := cfg.RiskPolicy(docs)

	assert.Equal(t, cfg.Decision.TopN, pol.TopN)
	assert.Len(t, pol.Strategies, 3)
	assert.InDelta(t, cfg.Decision.DefaultAssetCapUSD, pol.AssetCap("WETH"), 1e-9)
}
