package domain

import "slices"

// RiskLimits are the per-strategy numeric guards.
type RiskLimits struct {
	MaxSlippageBps       float64 `yaml:"max_slippage_bps" json:"max_slippage_bps"`
	MaxGasPct            float64 `yaml:"max_gas_pct" json:"max_gas_pct"`
	MaxBridgeLatencySecs float64 `yaml:"max_bridge_latency_secs" json:"max_bridge_latency_secs"`
	MinSuccessProb       float64 `yaml:"min_success_prob" json:"min_success_prob"`
}

// DefaultRiskLimits mirrors the conservative limits applied when a strategy
// document omits its risk block.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxSlippageBps:       100,
		MaxGasPct:            50,
		MaxBridgeLatencySecs: 300,
		MinSuccessProb:       0.8,
	}
}

// StrategyConfig is one strategy document.
type StrategyConfig struct {
	Name           string     `yaml:"-" json:"name"`
	Enabled        bool       `yaml:"enabled" json:"enabled"`
	MinProfitUSD   float64    `yaml:"min_profit_usd" json:"min_profit_usd"`
	MinProfitBps   float64    `yaml:"min_profit_bps" json:"min_profit_bps"`
	MaxPositionUSD float64    `yaml:"max_position_usd" json:"max_position_usd"`
	CapitalUSD     float64    `yaml:"capital_usd" json:"capital_usd"`
	MinConfidence  float64    `yaml:"min_confidence" json:"min_confidence"`
	ApprovedAssets []string   `yaml:"approved_assets" json:"approved_assets"`
	ApprovedChains []Chain    `yaml:"approved_chains" json:"approved_chains"`
	RiskLimits     RiskLimits `yaml:"risk_limits" json:"risk_limits"`
}

// AssetApproved reports whitelist membership. An empty list approves nothing.
func (s StrategyConfig) AssetApproved(asset string) bool {
	return slices.Contains(s.ApprovedAssets, asset)
}

// ChainApproved reports whitelist membership. An empty list approves nothing.
func (s StrategyConfig) ChainApproved(chain Chain) bool {
	return slices.Contains(s.ApprovedChains, chain)
}

// RiskPolicy is the decision engine's active configuration.
type RiskPolicy struct {
	Strategies          map[string]StrategyConfig
	TopN                int
	AssetCapsUSD        map[string]float64
	DefaultAssetCapUSD  float64
	ExposureWeight      float64
	ExposureNormUSD     float64
	ConcentrationWeight float64
	HealthExemptChains  []Chain
}

// AssetCap returns the exposure cap of an asset.
func (p RiskPolicy) AssetCap(asset string) float64 {
	if c, ok := p.AssetCapsUSD[asset]; ok {
		return c
	}
	return p.DefaultAssetCapUSD
}

// HealthExempt reports whether a chain may pass the health filter without a
// sequencer report.
func (p RiskPolicy) HealthExempt(chain Chain) bool {
	return slices.Contains(p.HealthExemptChains, chain)
}
