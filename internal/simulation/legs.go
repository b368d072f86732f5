package simulation

import (
	"context"
	"fmt"
	"math"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// legModel holds everything about one leg that does not depend on size.
type legModel struct {
	leg    domain.CandidateLeg
	gasUSD float64

	// swap
	pool       *domain.AMMState
	rate       float64
	feeBps     float64
	slipFactor float64

	// bridge
	bridge         *domain.BridgeState
	settlementSecs float64

	// flash loan
	flash *domain.FlashLoanState
}

// pathModel is a candidate resolved against its snapshot.
type pathModel struct {
	legs      []legModel
	edge      float64
	upperUSD  float64
	startUSD  float64 // USD price of the first leg's input asset
	latencyS  float64
	hasBridge bool
}

// resolve looks up every state entry the path needs. Missing entries fail
// with MissingFeature, stale ones with StaleSnapshot; a flash loan larger than
// the provider's liquidity fails with LiquidityExceeded.
func (e *Engine) resolve(ctx context.Context, c domain.Candidate, calib *domain.CalibrationState) (*pathModel, error) {
	snap := c.Snapshot
	m := &pathModel{edge: 1, upperUSD: e.cfg.MaxSizeUSD}
	if sc, ok := e.cfg.Strategies[c.Strategy]; ok && sc.MaxPositionUSD > 0 {
		m.upperUSD = math.Min(m.upperUSD, sc.MaxPositionUSD)
	}

	for i, leg := range c.Legs {
		if ctx.Err() != nil {
			return nil, domain.MissingFeature(leg.Chain, leg.Instrument, "simulation deadline exceeded during state lookup")
		}
		lm := legModel{leg: leg}

		gas, err := e.legGasUSD(snap, leg, calib)
		if err != nil {
			return nil, err
		}
		lm.gasUSD = gas

		switch leg.Action {
		case domain.ActionSwap:
			p, ok := snap.Pool(leg.Chain, leg.Instrument)
			if !ok {
				return nil, domain.MissingFeature(leg.Chain, leg.Instrument, "pool")
			}
			if p.Stale {
				return nil, domain.StaleSnapshot(leg.Chain, leg.Instrument, "pool")
			}
			rate, ok := p.State.Rate(leg.AssetIn, leg.AssetOut)
			if !ok {
				return nil, domain.MissingFeature(leg.Chain, leg.Instrument,
					fmt.Sprintf("pool does not trade %s/%s", leg.AssetIn, leg.AssetOut))
			}
			pool, err := e.poolWithDepth(snap, leg, p.State)
			if err != nil {
				return nil, err
			}
			lm.pool = pool
			lm.rate = rate
			lm.feeBps = p.State.FeeBps
			lm.slipFactor = calib.SlippageFactor(leg.Chain, p.State.Protocol)
			m.edge *= rate

		case domain.ActionBridge:
			st, ok := snap.Get(leg.Chain, leg.Instrument)
			if !ok || st.Feature.Bridge == nil || !st.Feature.Bridge.Active {
				return nil, domain.MissingFeature(leg.Chain, leg.Instrument, "active bridge route")
			}
			if !st.Usable() {
				return nil, domain.StaleSnapshot(leg.Chain, leg.Instrument, "bridge route")
			}
			b := st.Feature.Bridge
			secs := b.SettlementSecs
			if secs <= 0 {
				secs = defaultSettlementSecs(leg.Chain, b.DestChain)
			}
			lm.bridge = b
			lm.settlementSecs = secs * calib.LatencyFactor(b.Protocol)
			m.latencyS += lm.settlementSecs
			m.hasBridge = true
			if b.LiquidityUSD > 0 {
				m.upperUSD = math.Min(m.upperUSD, b.LiquidityUSD)
			}

		case domain.ActionFlashBorrow, domain.ActionFlashRepay:
			st, ok := snap.Get(leg.Chain, leg.Instrument)
			if !ok || st.Feature.FlashLoan == nil || !st.Feature.FlashLoan.Active {
				return nil, domain.MissingFeature(leg.Chain, leg.Instrument, "active flash-loan provider")
			}
			if !st.Usable() {
				return nil, domain.StaleSnapshot(leg.Chain, leg.Instrument, "flash-loan provider")
			}
			fl := st.Feature.FlashLoan
			lm.flash = fl
			if leg.Action == domain.ActionFlashBorrow {
				if c.NotionalUSD > fl.AvailableUSD {
					return nil, &domain.SimError{
						Kind:       domain.SimLiquidityExceeded,
						Chain:      leg.Chain,
						Instrument: leg.Instrument,
						Detail:     "flash-loan notional exceeds available liquidity",
						Required:   c.NotionalUSD,
						Available:  fl.AvailableUSD,
					}
				}
				lm.feeBps = flashFeeBps(fl)
				if c.NotionalUSD > 0 {
					m.upperUSD = math.Min(m.upperUSD, c.NotionalUSD)
				}
			}

		default:
			return nil, domain.MissingFeature(leg.Chain, leg.Instrument, fmt.Sprintf("unsupported action %q", leg.Action))
		}

		if i == 0 {
			price, ok := snap.PriceUSD(leg.Chain, leg.AssetIn)
			if !ok {
				return nil, domain.MissingFeature(leg.Chain, leg.AssetIn, "usd price of input asset")
			}
			m.startUSD = price
		}
		m.legs = append(m.legs, lm)
	}
	if len(m.legs) == 0 {
		return nil, domain.MissingFeature("", "", "candidate has no legs")
	}
	m.edge--
	return m, nil
}

// poolWithDepth returns a pool that can price slippage at every size. A pool
// without a depth curve or reported liquidity is valued from its reserves at
// the snapshot's USD price of token0; one that still cannot be priced fails
// with MissingFeature.
func (e *Engine) poolWithDepth(snap *domain.Snapshot, leg domain.CandidateLeg, pool *domain.AMMState) (*domain.AMMState, error) {
	if _, ok := pool.SlippageAt(e.cfg.MinSizeUSD); ok {
		return pool, nil
	}
	if px, ok := snap.PriceUSD(leg.Chain, pool.Token0); ok {
		if liq := pool.ReserveLiquidityUSD(px); liq > 0 {
			priced := *pool
			priced.LiquidityUSD = liq
			return &priced, nil
		}
	}
	return nil, domain.MissingFeature(leg.Chain, leg.Instrument, "depth curve or liquidity")
}

// legGasUSD prices the leg's gas on its chain with the native asset's USD
// price scaled by the chain's calibrated gas variance.
func (e *Engine) legGasUSD(snap *domain.Snapshot, leg domain.CandidateLeg, calib *domain.CalibrationState) (float64, error) {
	units := e.cfg.GasUnits.of(leg.Action)
	if units == 0 {
		return 0, nil
	}
	gas, stale, ok := snap.Gas(leg.Chain)
	if !ok {
		return 0, domain.MissingFeature(leg.Chain, domain.GasInstrument, "gas state")
	}
	if stale {
		return 0, domain.StaleSnapshot(leg.Chain, domain.GasInstrument, "gas state")
	}
	native := gas.NativeAsset
	if native == "" {
		native = e.cfg.DefaultNativeAsset
	}
	price, ok := snap.PriceUSD(leg.Chain, native)
	if !ok {
		return 0, domain.MissingFeature(leg.Chain, native, "usd price of gas asset")
	}
	return gasCostUSD(units, gas.TotalGwei(), price) * calib.GasFactor(leg.Chain), nil
}
