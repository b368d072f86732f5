// Package domaintest provides feature and snapshot builders for tests.
package domaintest

import (
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// T0 is the reference instant used by fixtures.
var T0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// Pool builds an AMM feature with a linear depth curve of slipPerMillion bps
// per million USD traded.
func Pool(chain domain.Chain, id, protocol, token0, token1 string, mid, feeBps, slipPerMillion float64, block uint64) domain.Feature {
	return domain.Feature{
		Chain:       chain,
		Instrument:  id,
		BlockNumber: block,
		Timestamp:   T0,
		Kind:        domain.FeatureAMM,
		AMM: &domain.AMMState{
			Protocol:     protocol,
			Token0:       token0,
			Token1:       token1,
			MidPrice:     mid,
			FeeBps:       feeBps,
			LiquidityUSD: 50_000_000,
			Depth: []domain.DepthPoint{
				{SizeUSD: 100_000, SlippageBps: slipPerMillion / 10},
				{SizeUSD: 1_000_000, SlippageBps: slipPerMillion},
				{SizeUSD: 10_000_000, SlippageBps: slipPerMillion * 10},
			},
		},
	}
}

// Gas builds a gas feature.
func Gas(chain domain.Chain, baseGwei, priorityGwei float64, block uint64) domain.Feature {
	return domain.Feature{
		Chain:       chain,
		Instrument:  domain.GasInstrument,
		BlockNumber: block,
		Timestamp:   T0,
		Kind:        domain.FeatureGas,
		Gas:         &domain.GasState{BaseFeeGwei: baseGwei, PriorityFeeGwei: priorityGwei, NativeAsset: "WETH"},
	}
}

// Sequencer builds a sequencer-health feature.
func Sequencer(chain domain.Chain, status domain.SequencerStatus, block uint64) domain.Feature {
	return domain.Feature{
		Chain:       chain,
		Instrument:  domain.SequencerInstrument,
		BlockNumber: block,
		Timestamp:   T0,
		Kind:        domain.FeatureSequencer,
		Sequencer:   &domain.SequencerState{Status: status},
	}
}

// Bridge builds an active bridge route feature.
func Bridge(src, dst domain.Chain, protocol, asset string, feeBps, settlementSecs, liquidityUSD float64, block uint64) domain.Feature {
	return domain.Feature{
		Chain:       src,
		Instrument:  domain.BridgeInstrument(protocol, dst, asset),
		BlockNumber: block,
		Timestamp:   T0,
		Kind:        domain.FeatureBridge,
		Bridge: &domain.BridgeState{
			Protocol:       protocol,
			DestChain:      dst,
			Asset:          asset,
			LiquidityUSD:   liquidityUSD,
			FeeBps:         feeBps,
			SettlementSecs: settlementSecs,
			Active:         true,
		},
	}
}

// FlashLoan builds an active flash-loan pool feature.
func FlashLoan(chain domain.Chain, provider, asset string, availableUSD, feeBps float64, block uint64) domain.Feature {
	return domain.Feature{
		Chain:       chain,
		Instrument:  domain.FlashLoanInstrument(provider, asset),
		BlockNumber: block,
		Timestamp:   T0,
		Kind:        domain.FeatureFlashLoan,
		FlashLoan: &domain.FlashLoanState{
			Provider:     provider,
			Asset:        asset,
			AvailableUSD: availableUSD,
			FeeBps:       feeBps,
			Active:       true,
		},
	}
}

// Snapshot builds a snapshot at version and T0 from fresh features.
func Snapshot(version uint64, features ...domain.Feature) *domain.Snapshot {
	entries := make(map[domain.StateKey]domain.MarketState, len(features))
	for _, f := range features {
		f = f.Normalize()
		entries[f.Key()] = domain.MarketState{Feature: f, Version: version, UpdatedAt: T0}
	}
	return domain.NewSnapshot(version, T0, entries)
}

// DexArbMarket returns the Uniswap 1850 / Curve 1855 WETH-USDC market on
// Ethereum with a healthy sequencer and 90 gwei gas.
func DexArbMarket(block uint64) []domain.Feature {
	return []domain.Feature{
		Pool(domain.ChainEthereum, "uni-weth-usdc", "uniswap_v3", "WETH", "USDC", 1850, 1, 2, block),
		Pool(domain.ChainEthereum, "curve-weth-usdc", "curve", "WETH", "USDC", 1855, 1, 2, block),
		Gas(domain.ChainEthereum, 88, 2, block),
		Sequencer(domain.ChainEthereum, domain.SequencerHealthy, block),
	}
}
