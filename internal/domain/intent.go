package domain

import (
	"fmt"
	"strings"
	"time"
)

// IntentSchemaVersion is the current wire schema of TradeIntent.
const IntentSchemaVersion uint32 = 1

// IntentLeg is one executable step with its guarantees.
type IntentLeg struct {
	Chain        Chain     `json:"chain"`
	Action       LegAction `json:"action"`
	Protocol     string    `json:"protocol"`
	Instrument   string    `json:"instrument"`
	AssetIn      string    `json:"asset_in"`
	AmountIn     float64   `json:"amount_in"`
	AssetOut     string    `json:"asset_out"`
	MinAmountOut float64   `json:"min_amount_out"`
	MaxFeeBps    float64   `json:"max_fee_bps"`
	Deadline     time.Time `json:"deadline"`
}

// TradeIntent is the execution-ready plan handed to the execution boundary.
// It is immutable once built.
type TradeIntent struct {
	SchemaVersion   uint32        `json:"schema_version"`
	CorrelationID   string        `json:"correlation_id"`
	Strategy        string        `json:"strategy"`
	Asset           string        `json:"asset"`
	SizeUSD         float64       `json:"size_usd"`
	Legs            []IntentLeg   `json:"legs"`
	ExpectedPnLUSD  float64       `json:"expected_pnl_usd"`
	SuccessProb     float64       `json:"success_prob"`
	SnapshotVersion uint64        `json:"snapshot_version"`
	CreatedAt       time.Time     `json:"created_at"`
	TTL             time.Duration `json:"ttl"`
	ExpiresAt       time.Time     `json:"expires_at"`
}

// Expired reports whether the intent's deadline has passed.
func (t TradeIntent) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// Chains returns every chain touched by the legs.
func (t TradeIntent) Chains() []Chain {
	legs := make([]CandidateLeg, len(t.Legs))
	for i, l := range t.Legs {
		legs[i] = CandidateLeg{Chain: l.Chain}
	}
	return legChains(legs)
}

func (t TradeIntent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "intent %s v%d %s %s size=$%.2f pnl=$%.2f p=%.3f ttl=%s",
		t.CorrelationID, t.SchemaVersion, t.Strategy, t.Asset, t.SizeUSD, t.ExpectedPnLUSD, t.SuccessProb, t.TTL)
	for i, l := range t.Legs {
		fmt.Fprintf(&b, "\n  %d. %s %s/%s %.6f %s -> >=%.6f %s fee<=%.2fbps by %s",
			i+1, l.Action, l.Chain, l.Protocol, l.AmountIn, l.AssetIn, l.MinAmountOut, l.AssetOut,
			l.MaxFeeBps, l.Deadline.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// ExecutionReceipt reports the realized outcome of an intent.
type ExecutionReceipt struct {
	CorrelationID       string    `json:"correlation_id"`
	Success             bool      `json:"success"`
	RealizedPnLUSD      float64   `json:"realized_pnl_usd"`
	RealizedSlippageBps float64   `json:"realized_slippage_bps"`
	RealizedGasUSD      float64   `json:"realized_gas_usd"`
	BridgeLatencySecs   float64   `json:"bridge_latency_secs,omitempty"`
	CompletedAt         time.Time `json:"completed_at"`
	Error               string    `json:"error,omitempty"`
}
