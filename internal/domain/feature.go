package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Chain identifies a settlement network.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainArbitrum Chain = "arbitrum"
	ChainOptimism Chain = "optimism"
	ChainBase     Chain = "base"
)

// IsL2 reports whether the chain settles to Ethereum through a rollup.
func (c Chain) IsL2() bool {
	switch c {
	case ChainArbitrum, ChainOptimism, ChainBase:
		return true
	}
	return false
}

// FeatureKind tags the payload carried by a Feature. It doubles as the
// stream partition name on the inbound bus.
type FeatureKind string

const (
	FeatureAMM       FeatureKind = "amm"
	FeatureBridge    FeatureKind = "bridge"
	FeatureGas       FeatureKind = "gas"
	FeatureFlashLoan FeatureKind = "flash_loan"
	FeatureSequencer FeatureKind = "sequencer"
)

// FeatureKinds lists every partition in a stable order.
var FeatureKinds = []FeatureKind{FeatureAMM, FeatureBridge, FeatureGas, FeatureFlashLoan, FeatureSequencer}

// Fixed instrument ids for chain-wide features.
const (
	GasInstrument       = "gas"
	SequencerInstrument = "sequencer"
)

// BridgeInstrument returns the instrument id of a bridge route leaving a chain.
func BridgeInstrument(protocol string, dest Chain, asset string) string {
	return "bridge:" + protocol + ":" + string(dest) + ":" + asset
}

// FlashLoanInstrument returns the instrument id of a flash-loan pool.
func FlashLoanInstrument(provider, asset string) string {
	return "flash:" + provider + ":" + asset
}

// NormalizeInstrument checksums hex addresses so pools reported by different
// producers collapse onto one key. Other ids pass through unchanged.
func NormalizeInstrument(id string) string {
	if common.IsHexAddress(id) {
		return common.HexToAddress(id).Hex()
	}
	return id
}

// SequencerStatus is the reported liveness of a chain's sequencer.
type SequencerStatus string

const (
	SequencerHealthy  SequencerStatus = "healthy"
	SequencerDegraded SequencerStatus = "degraded"
	SequencerDown     SequencerStatus = "down"
	SequencerUnknown  SequencerStatus = "unknown"
)

// StateKey addresses one entry of the market state store.
type StateKey struct {
	Chain      Chain
	Instrument string
}

func (k StateKey) String() string { return string(k.Chain) + "/" + k.Instrument }

// DepthPoint is one sample of a pool's slippage curve.
type DepthPoint struct {
	SizeUSD     float64 `json:"size_usd"`
	SlippageBps float64 `json:"slippage_bps"`
}

// FeePoint is one sample of a bridge fee curve.
type FeePoint struct {
	SizeUSD float64 `json:"size_usd"`
	FeeBps  float64 `json:"fee_bps"`
}

// AMMState describes a pool. MidPrice is Token1 per unit of Token0.
type AMMState struct {
	Protocol     string       `json:"protocol"`
	Token0       string       `json:"token0"`
	Token1       string       `json:"token1"`
	Reserve0     float64      `json:"reserve0"`
	Reserve1     float64      `json:"reserve1"`
	MidPrice     float64      `json:"mid_price"`
	FeeBps       float64      `json:"fee_bps"`
	LiquidityUSD float64      `json:"liquidity_usd"`
	Depth        []DepthPoint `json:"depth,omitempty"`
}

// Has reports whether the pool trades the asset.
func (a *AMMState) Has(asset string) bool {
	return a.Token0 == asset || a.Token1 == asset
}

// Rate returns units of out received per unit of in at the mid price.
func (a *AMMState) Rate(in, out string) (float64, bool) {
	switch {
	case a.Token0 == in && a.Token1 == out:
		return a.MidPrice, true
	case a.Token1 == in && a.Token0 == out:
		return 1 / a.MidPrice, true
	}
	return 0, false
}

// Other returns the counter asset of the pool.
func (a *AMMState) Other(asset string) string {
	if a.Token0 == asset {
		return a.Token1
	}
	return a.Token0
}

// BridgeState describes a bridge route from the feature's chain to DestChain.
type BridgeState struct {
	Protocol       string     `json:"protocol"`
	DestChain      Chain      `json:"dest_chain"`
	Asset          string     `json:"asset"`
	LiquidityUSD   float64    `json:"liquidity_usd"`
	FeeBps         float64    `json:"fee_bps"`
	FeeCurve       []FeePoint `json:"fee_curve,omitempty"`
	SettlementSecs float64    `json:"settlement_secs"`
	Active         bool       `json:"active"`
}

// GasState is the chain's current fee market.
type GasState struct {
	BaseFeeGwei     float64 `json:"base_fee_gwei"`
	PriorityFeeGwei float64 `json:"priority_fee_gwei"`
	NativeAsset     string  `json:"native_asset"`
}

// TotalGwei is the effective price paid per gas unit.
func (g *GasState) TotalGwei() float64 { return g.BaseFeeGwei + g.PriorityFeeGwei }

// FlashLoanState describes a flash-loan pool.
type FlashLoanState struct {
	Provider     string  `json:"provider"`
	Asset        string  `json:"asset"`
	AvailableUSD float64 `json:"available_usd"`
	FeeBps       float64 `json:"fee_bps"`
	Active       bool    `json:"active"`
}

// SequencerState carries a sequencer health report.
type SequencerState struct {
	Status SequencerStatus `json:"status"`
}

// Feature is one normalized market observation. Exactly one payload pointer,
// selected by Kind, is set.
type Feature struct {
	ID          string      `json:"id,omitempty"`
	Chain       Chain       `json:"chain"`
	Instrument  string      `json:"instrument"`
	BlockNumber uint64      `json:"block_number"`
	Timestamp   time.Time   `json:"timestamp"`
	Kind        FeatureKind `json:"kind"`
	Source      string      `json:"source,omitempty"`

	AMM       *AMMState       `json:"amm,omitempty"`
	Bridge    *BridgeState    `json:"bridge,omitempty"`
	Gas       *GasState       `json:"gas,omitempty"`
	FlashLoan *FlashLoanState `json:"flash_loan,omitempty"`
	Sequencer *SequencerState `json:"sequencer,omitempty"`
}

// Key returns the state-store key of the feature.
func (f Feature) Key() StateKey {
	return StateKey{Chain: f.Chain, Instrument: f.Instrument}
}

// Normalize fills derived instrument ids and checksums hex addresses.
func (f Feature) Normalize() Feature {
	f.Chain = Chain(strings.ToLower(string(f.Chain)))
	switch f.Kind {
	case FeatureGas:
		if f.Instrument == "" {
			f.Instrument = GasInstrument
		}
	case FeatureSequencer:
		if f.Instrument == "" {
			f.Instrument = SequencerInstrument
		}
	case FeatureBridge:
		if f.Instrument == "" && f.Bridge != nil {
			f.Instrument = BridgeInstrument(f.Bridge.Protocol, f.Bridge.DestChain, f.Bridge.Asset)
		}
	case FeatureFlashLoan:
		if f.Instrument == "" && f.FlashLoan != nil {
			f.Instrument = FlashLoanInstrument(f.FlashLoan.Provider, f.FlashLoan.Asset)
		}
	}
	f.Instrument = NormalizeInstrument(f.Instrument)
	return f
}

// Validate checks that the payload matches Kind and carries usable values.
func (f Feature) Validate() error {
	if f.Chain == "" || f.Instrument == "" {
		return fmt.Errorf("%w: chain and instrument are required", ErrInvalidFeature)
	}
	set := 0
	for _, p := range []bool{f.AMM != nil, f.Bridge != nil, f.Gas != nil, f.FlashLoan != nil, f.Sequencer != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: %s expects exactly one payload, got %d", ErrInvalidFeature, f.Key(), set)
	}

	switch f.Kind {
	case FeatureAMM:
		if f.AMM == nil {
			return fmt.Errorf("%w: %s: amm payload missing", ErrInvalidFeature, f.Key())
		}
		if f.AMM.Token0 == "" || f.AMM.Token1 == "" || f.AMM.MidPrice <= 0 {
			return fmt.Errorf("%w: %s: amm tokens and positive mid price required", ErrInvalidFeature, f.Key())
		}
		a := f.AMM
		if !finite(a.MidPrice, a.FeeBps, a.LiquidityUSD, a.Reserve0, a.Reserve1) || !finiteDepth(a.Depth) {
			return fmt.Errorf("%w: %s: amm values must be finite", ErrInvalidFeature, f.Key())
		}
	case FeatureBridge:
		if f.Bridge == nil {
			return fmt.Errorf("%w: %s: bridge payload missing", ErrInvalidFeature, f.Key())
		}
		if f.Bridge.DestChain == "" || f.Bridge.Asset == "" {
			return fmt.Errorf("%w: %s: bridge destination and asset required", ErrInvalidFeature, f.Key())
		}
		b := f.Bridge
		if !finite(b.LiquidityUSD, b.FeeBps, b.SettlementSecs) {
			return fmt.Errorf("%w: %s: bridge values must be finite", ErrInvalidFeature, f.Key())
		}
		for _, p := range b.FeeCurve {
			if !finite(p.SizeUSD, p.FeeBps) {
				return fmt.Errorf("%w: %s: bridge fee curve must be finite", ErrInvalidFeature, f.Key())
			}
		}
	case FeatureGas:
		if f.Gas == nil {
			return fmt.Errorf("%w: %s: gas payload missing", ErrInvalidFeature, f.Key())
		}
		if !finite(f.Gas.BaseFeeGwei, f.Gas.PriorityFeeGwei) || f.Gas.BaseFeeGwei < 0 || f.Gas.PriorityFeeGwei < 0 {
			return fmt.Errorf("%w: %s: negative gas price", ErrInvalidFeature, f.Key())
		}
	case FeatureFlashLoan:
		if f.FlashLoan == nil {
			return fmt.Errorf("%w: %s: flash-loan payload missing", ErrInvalidFeature, f.Key())
		}
		if !finite(f.FlashLoan.AvailableUSD, f.FlashLoan.FeeBps) || f.FlashLoan.AvailableUSD < 0 {
			return fmt.Errorf("%w: %s: negative or non-finite liquidity", ErrInvalidFeature, f.Key())
		}
	case FeatureSequencer:
		if f.Sequencer == nil {
			return fmt.Errorf("%w: %s: sequencer payload missing", ErrInvalidFeature, f.Key())
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidFeature, f.Kind)
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func finiteDepth(pts []DepthPoint) bool {
	for _, p := range pts {
		if !finite(p.SizeUSD, p.SlippageBps) {
			return false
		}
	}
	return true
}
