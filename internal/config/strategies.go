package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// LoadStrategies reads the YAML strategy documents at path. The file is a
// mapping from strategy name to document; a document without a risk_limits
// block, or with a partial one, inherits domain.DefaultRiskLimits for the
// missing fields.
func LoadStrategies(path string) (map[string]domain.StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read strategies %q: %w", path, err)
	}
	return ParseStrategies(data)
}

// ParseStrategies decodes and validates strategy documents.
func ParseStrategies(data []byte) (map[string]domain.StrategyConfig, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse strategies: %w", err)
	}

	out := make(map[string]domain.StrategyConfig, len(raw))
	var errs []string
	for name, node := range raw {
		doc := domain.StrategyConfig{RiskLimits: domain.DefaultRiskLimits()}
		if err := node.Decode(&doc); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		doc.Name = name
		for i, c := range doc.ApprovedChains {
			doc.ApprovedChains[i] = domain.Chain(strings.ToLower(string(c)))
		}
		for i, a := range doc.ApprovedAssets {
			doc.ApprovedAssets[i] = strings.ToUpper(a)
		}
		errs = append(errs, validateStrategy(doc)...)
		out[name] = doc
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, fmt.Errorf("config: invalid strategies:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return out, nil
}

func validateStrategy(s domain.StrategyConfig) []string {
	var errs []string
	bad := func(format string, args ...any) {
		errs = append(errs, s.Name+": "+fmt.Sprintf(format, args...))
	}
	if s.MinProfitUSD < 0 {
		bad("min_profit_usd must be >= 0")
	}
	if s.MinProfitBps < 0 {
		bad("min_profit_bps must be >= 0")
	}
	if s.MaxPositionUSD < 0 {
		bad("max_position_usd must be >= 0")
	}
	if s.CapitalUSD < 0 {
		bad("capital_usd must be >= 0")
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		bad("min_confidence must be in [0, 1], got %g", s.MinConfidence)
	}
	r := s.RiskLimits
	if r.MaxSlippageBps < 0 || r.MaxGasPct < 0 || r.MaxBridgeLatencySecs < 0 {
		bad("risk_limits must be non-negative")
	}
	if r.MinSuccessProb < 0 || r.MinSuccessProb > 1 {
		bad("risk_limits.min_success_prob must be in [0, 1], got %g", r.MinSuccessProb)
	}
	if s.Enabled && (len(s.ApprovedAssets) == 0 || len(s.ApprovedChains) == 0) {
		bad("enabled strategy needs approved_assets and approved_chains")
	}
	if s.Enabled && s.MaxPositionUSD <= 0 {
		bad("enabled strategy needs max_position_usd > 0")
	}
	return errs
}

// RiskPolicy assembles the decision policy from the service config and the
// strategy documents.
func (c *Config) RiskPolicy(strategies map[string]domain.StrategyConfig) domain.RiskPolicy {
	exempt := make([]domain.Chain, 0, len(c.Decision.HealthExemptChains))
	for _, ch := range c.Decision.HealthExemptChains {
		exempt = append(exempt, domain.Chain(strings.ToLower(ch)))
	}
	caps := make(map[string]float64, len(c.Decision.AssetCapsUSD))
	for asset, v := range c.Decision.AssetCapsUSD {
		caps[strings.ToUpper(asset)] = v
	}
	return domain.RiskPolicy{
		Strategies:          strategies,
		TopN:                c.Decision.TopN,
		AssetCapsUSD:        caps,
		DefaultAssetCapUSD:  c.Decision.DefaultAssetCapUSD,
		ExposureWeight:      c.Decision.ExposureWeight,
		ExposureNormUSD:     c.Decision.ExposureNormUSD,
		ConcentrationWeight: c.Decision.ConcentrationWeight,
		HealthExemptChains:  exempt,
	}
}
