package simulation

import (
	"math"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// trial is the path priced at one size.
type trial struct {
	sizeUSD  float64
	gross    float64
	net      float64
	costs    domain.CostBreakdown
	slipBps  float64
	legCosts []legCost
}

type legCost struct {
	feeBps  float64
	slipBps float64
	costUSD float64
}

// maxSlippageBps prices a leg that cannot be filled at all.
const maxSlippageBps = 10_000

// price evaluates every leg at sizeUSD.
func (m *pathModel) price(sizeUSD, capitalAPR float64) trial {
	t := trial{sizeUSD: sizeUSD, gross: sizeUSD * m.edge, legCosts: make([]legCost, len(m.legs))}
	for i, lm := range m.legs {
		lc := legCost{costUSD: lm.gasUSD}
		t.costs.GasUSD += lm.gasUSD

		switch {
		case lm.pool != nil:
			lc.feeBps = lm.feeBps
			lc.slipBps = maxSlippageBps
			if est, ok := lm.pool.SlippageAt(sizeUSD); ok {
				lc.slipBps = est.SlippageBps * lm.slipFactor
			}
			fee := sizeUSD * lc.feeBps / 10_000
			slip := sizeUSD * lc.slipBps / 10_000
			t.costs.ProtocolFeesUSD += fee
			t.costs.SlippageUSD += slip
			t.slipBps += lc.slipBps
			lc.costUSD += fee + slip
		case lm.bridge != nil:
			lc.feeBps = lm.bridge.FeeBpsAt(sizeUSD)
			cost := sizeUSD*lc.feeBps/10_000 + latencyPenaltyUSD(sizeUSD, capitalAPR, lm.settlementSecs)
			t.costs.BridgeUSD += cost
			lc.costUSD += cost
		case lm.flash != nil && lm.leg.Action == domain.ActionFlashBorrow:
			lc.feeBps = lm.feeBps
			fee := sizeUSD * lc.feeBps / 10_000
			t.costs.FlashLoanUSD += fee
			lc.costUSD += fee
		}
		t.legCosts[i] = lc
	}
	t.net = t.gross - t.costs.Total()
	return t
}

const pnlEpsilon = 1e-9

// better prefers higher net PnL and, on a tie, the smaller size.
func better(a, b trial) bool {
	if math.Abs(a.net-b.net) <= pnlEpsilon*math.Max(1, math.Abs(b.net)) {
		return a.sizeUSD < b.sizeUSD
	}
	return a.net > b.net
}

// optimalSize scans sizes between lower and upper. It doubles (or halves)
// from start while net PnL improves, then narrows the bracket around the best
// point with ternary steps. The PnL curve is concave in size because
// slippage outgrows the spread, so the scan converges.
func (m *pathModel) optimalSize(start, lower, upper, capitalAPR float64, refine int) trial {
	start = math.Max(lower, math.Min(upper, start))
	eval := func(s float64) trial { return m.price(s, capitalAPR) }

	best := eval(start)
	lo, hi := math.Max(lower, start/2), math.Min(upper, start*2)

	expanded := false
	for s := start * 2; ; s *= 2 {
		if s > upper {
			s = upper
		}
		if s <= best.sizeUSD {
			break
		}
		t := eval(s)
		if !better(t, best) {
			hi = s
			break
		}
		lo, best, expanded = best.sizeUSD, t, true
		hi = math.Min(upper, s*2)
		if s == upper {
			hi = upper
			break
		}
	}

	if !expanded {
		for s := start / 2; s >= lower; s /= 2 {
			t := eval(s)
			if !better(t, best) {
				lo = s
				break
			}
			hi, best = best.sizeUSD, t
			lo = math.Max(lower, s/2)
		}
	}

	for i := 0; i < refine && hi-lo > 1; i++ {
		m1 := lo + (hi-lo)/3
		m2 := hi - (hi-lo)/3
		t1, t2 := eval(m1), eval(m2)
		if better(t1, best) {
			best = t1
		}
		if better(t2, best) {
			best = t2
		}
		if t1.net >= t2.net {
			hi = m2
		} else {
			lo = m1
		}
	}
	return best
}
