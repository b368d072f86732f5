package decision

import (
	"fmt"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Rejection reasons, one per hard filter.
const (
	ReasonUnknownStrategy  = "unknown_strategy"
	ReasonDisabled         = "strategy_disabled"
	ReasonMinProfitUSD     = "min_profit_usd"
	ReasonMinProfitBps     = "min_profit_bps"
	ReasonMaxSlippage      = "max_slippage_bps"
	ReasonMinSuccessProb   = "min_success_prob"
	ReasonMaxGasPct        = "max_gas_pct"
	ReasonMaxBridgeLatency = "max_bridge_latency_secs"
	ReasonMaxPosition      = "max_position_usd"
	ReasonChainHealth      = "chain_health"
	ReasonInvalidated      = "snapshot_invalidated"
	ReasonAsset            = "asset_not_approved"
	ReasonChain            = "chain_not_approved"
)

// RejectError describes the first filter an evaluation failed.
type RejectError struct {
	CandidateID string
	Reason      string
	Value       string
	Limit       string
}

func (e *RejectError) Error() string {
	if e.Limit == "" {
		return fmt.Sprintf("decision: %s rejected: %s (%s)", e.CandidateID, e.Reason, e.Value)
	}
	return fmt.Sprintf("decision: %s rejected: %s (%s vs limit %s)", e.CandidateID, e.Reason, e.Value, e.Limit)
}

func reject(res domain.EvaluationResult, reason string, value, limit any) *RejectError {
	e := &RejectError{CandidateID: res.CandidateID, Reason: reason, Value: fmt.Sprint(value)}
	if limit != nil {
		e.Limit = fmt.Sprint(limit)
	}
	return e
}

// Filter applies the hard filters to one evaluation in order and returns the
// first violation, or nil.
func (e *Engine) Filter(res domain.EvaluationResult) error {
	pol := e.Policy()
	sc, ok := pol.Strategies[res.Strategy]
	if !ok {
		return reject(res, ReasonUnknownStrategy, res.Strategy, nil)
	}
	if !sc.Enabled {
		return reject(res, ReasonDisabled, res.Strategy, nil)
	}
	lim := sc.RiskLimits

	switch {
	case res.NetPnLUSD < sc.MinProfitUSD:
		return reject(res, ReasonMinProfitUSD, res.NetPnLUSD, sc.MinProfitUSD)
	case res.NetSpreadBps < sc.MinProfitBps:
		return reject(res, ReasonMinProfitBps, res.NetSpreadBps, sc.MinProfitBps)
	case res.SlippageBps > lim.MaxSlippageBps:
		return reject(res, ReasonMaxSlippage, res.SlippageBps, lim.MaxSlippageBps)
	case res.SuccessProb < lim.MinSuccessProb:
		return reject(res, ReasonMinSuccessProb, res.SuccessProb, lim.MinSuccessProb)
	case res.GasPct() > lim.MaxGasPct:
		return reject(res, ReasonMaxGasPct, res.GasPct(), lim.MaxGasPct)
	case res.BridgeLatencySecs > lim.MaxBridgeLatencySecs:
		return reject(res, ReasonMaxBridgeLatency, res.BridgeLatencySecs, lim.MaxBridgeLatencySecs)
	case res.OptimalSizeUSD > sc.MaxPositionUSD:
		return reject(res, ReasonMaxPosition, res.OptimalSizeUSD, sc.MaxPositionUSD)
	}

	for _, c := range res.Chains {
		if !e.healthy(pol, c) {
			return reject(res, ReasonChainHealth, c, nil)
		}
	}
	if e.cfg.Invalidation != nil && e.cfg.Invalidation.Invalidated(res.SnapshotVersion, res.Chains) {
		return reject(res, ReasonInvalidated, res.SnapshotVersion, nil)
	}

	if !sc.AssetApproved(res.Asset) {
		return reject(res, ReasonAsset, res.Asset, nil)
	}
	for _, c := range res.Chains {
		if !sc.ChainApproved(c) {
			return reject(res, ReasonChain, c, nil)
		}
	}
	return nil
}

func (e *Engine) healthy(pol *domain.RiskPolicy, chain domain.Chain) bool {
	switch e.cfg.Health.ChainHealth(chain) {
	case domain.SequencerHealthy:
		return true
	case domain.SequencerUnknown:
		return pol.HealthExempt(chain)
	default:
		return false
	}
}
