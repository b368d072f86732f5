package domain

import "time"

// CostBreakdown itemises the costs subtracted from the gross spread.
type CostBreakdown struct {
	GasUSD          float64 `json:"gas_usd"`
	ProtocolFeesUSD float64 `json:"protocol_fees_usd"`
	SlippageUSD     float64 `json:"slippage_usd"`
	BridgeUSD       float64 `json:"bridge_usd"`
	FlashLoanUSD    float64 `json:"flash_loan_usd"`
}

// Total sums every cost component.
func (c CostBreakdown) Total() float64 {
	return c.GasUSD + c.ProtocolFeesUSD + c.SlippageUSD + c.BridgeUSD + c.FlashLoanUSD
}

// SimulatedLeg is a candidate leg priced at the chosen size. Amounts are in
// units of the respective asset.
type SimulatedLeg struct {
	CandidateLeg
	AmountIn    float64 `json:"amount_in"`
	AmountOut   float64 `json:"amount_out"`
	FeeBps      float64 `json:"fee_bps"`
	SlippageBps float64 `json:"slippage_bps"`
	GasUSD      float64 `json:"gas_usd"`
	CostUSD     float64 `json:"cost_usd"`
}

// EvaluationResult is the simulated economics of a candidate at its optimal
// size. Costs.Total() equals GrossPnLUSD - NetPnLUSD.
type EvaluationResult struct {
	CandidateID       string         `json:"candidate_id"`
	Strategy          string         `json:"strategy"`
	Asset             string         `json:"asset"`
	Legs              []SimulatedLeg `json:"legs"`
	GrossPnLUSD       float64        `json:"gross_pnl_usd"`
	NetPnLUSD         float64        `json:"net_pnl_usd"`
	NetSpreadBps      float64        `json:"net_spread_bps"`
	OptimalSizeUSD    float64        `json:"optimal_size_usd"`
	SuccessProb       float64        `json:"success_prob"`
	SlippageBps       float64        `json:"slippage_bps"`
	BridgeLatencySecs float64        `json:"bridge_latency_secs"`
	Costs             CostBreakdown  `json:"costs"`
	Chains            []Chain        `json:"chains"`
	SnapshotVersion   uint64         `json:"snapshot_version"`
	EvaluatedAt       time.Time      `json:"evaluated_at"`
}

// GasPct is gas as a percentage of the gross spread.
func (r EvaluationResult) GasPct() float64 {
	if r.GrossPnLUSD <= 0 {
		return 100
	}
	return r.Costs.GasUSD / r.GrossPnLUSD * 100
}

// SwapBuckets returns the calibration bucket of every swap leg.
func (r EvaluationResult) SwapBuckets() []string {
	var out []string
	for _, l := range r.Legs {
		if l.Action == ActionSwap {
			out = append(out, CalibrationBucket(l.Chain, l.Protocol))
		}
	}
	return out
}
