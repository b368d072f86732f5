package simulation

import (
	"github.com/ethereum/go-ethereum/params"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const secondsPerYear = 365 * 24 * 3600

// GasUnits is the gas consumed per leg action.
type GasUnits struct {
	Swap        uint64
	Bridge      uint64
	FlashBorrow uint64
	FlashRepay  uint64
}

// DefaultGasUnits are typical costs of a router swap, a bridge deposit and a
// flash-loan round trip.
func DefaultGasUnits() GasUnits {
	return GasUnits{Swap: 150_000, Bridge: 300_000, FlashBorrow: 200_000, FlashRepay: 50_000}
}

func (g GasUnits) of(a domain.LegAction) uint64 {
	switch a {
	case domain.ActionSwap:
		return g.Swap
	case domain.ActionBridge:
		return g.Bridge
	case domain.ActionFlashBorrow:
		return g.FlashBorrow
	case domain.ActionFlashRepay:
		return g.FlashRepay
	}
	return 0
}

// gasCostUSD prices units of gas at gwei per unit in a native asset worth
// nativeUSD.
func gasCostUSD(units uint64, gwei, nativeUSD float64) float64 {
	native := float64(units) * gwei * float64(params.GWei) / float64(params.Ether)
	return native * nativeUSD
}

// defaultSettlementSecs is used when a bridge feature carries no estimate.
func defaultSettlementSecs(src, dst domain.Chain) float64 {
	switch {
	case !src.IsL2() && dst.IsL2():
		return 600
	case src.IsL2() && !dst.IsL2():
		return 3600
	default:
		return 300
	}
}

// latencyPenaltyUSD discounts capital locked for secs at apr.
func latencyPenaltyUSD(sizeUSD, apr, secs float64) float64 {
	return sizeUSD * apr * secs / secondsPerYear
}

var defaultFlashFeeBps = map[string]float64{
	"aave_v3":  5,
	"balancer": 0,
	"dydx":     0,
}

func flashFeeBps(fl *domain.FlashLoanState) float64 {
	if fl.FeeBps > 0 {
		return fl.FeeBps
	}
	return defaultFlashFeeBps[fl.Provider]
}
