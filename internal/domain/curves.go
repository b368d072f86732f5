package domain

import (
	"math"
	"sort"
)

// SlippageEstimate is the expected price impact of trading SizeUSD through a
// pool.
type SlippageEstimate struct {
	SizeUSD      float64
	SlippageBps  float64
	Extrapolated bool
	Stale        bool
}

// SlippageAt evaluates the pool's depth curve at size. Between samples the
// curve is linear; beyond the last sample the final segment's slope is
// extended. Without samples a constant-product impact on the input side's
// USD reserve is used. It reports false when the pool has neither a curve nor
// a way to value its reserves.
func (a *AMMState) SlippageAt(sizeUSD float64) (SlippageEstimate, bool) {
	est := SlippageEstimate{SizeUSD: sizeUSD}
	pts := sortedDepth(a.Depth)
	if len(pts) == 0 {
		reserveIn := a.sideLiquidityUSD()
		if reserveIn <= 0 {
			return est, false
		}
		if sizeUSD > 0 {
			est.SlippageBps = sizeUSD / (reserveIn + sizeUSD) * 10_000
		}
		est.Extrapolated = true
		return est, true
	}
	if sizeUSD <= 0 {
		return est, true
	}

	prev := DepthPoint{}
	for _, p := range pts {
		if sizeUSD <= p.SizeUSD {
			est.SlippageBps = lerp(prev.SizeUSD, prev.SlippageBps, p.SizeUSD, p.SlippageBps, sizeUSD)
			return est, true
		}
		prev = p
	}

	last := pts[len(pts)-1]
	before := DepthPoint{}
	if len(pts) > 1 {
		before = pts[len(pts)-2]
	}
	est.SlippageBps = lerp(before.SizeUSD, before.SlippageBps, last.SizeUSD, last.SlippageBps, sizeUSD)
	if est.SlippageBps > 10_000 {
		est.SlippageBps = 10_000
	}
	est.Extrapolated = true
	return est, true
}

// sideLiquidityUSD is the USD value of one side of the pool: half the
// reported liquidity, or the reserve of a stable token.
func (a *AMMState) sideLiquidityUSD() float64 {
	switch {
	case a.LiquidityUSD > 0:
		return a.LiquidityUSD / 2
	case a.Reserve0 <= 0 || a.Reserve1 <= 0:
		return 0
	case IsStable(a.Token1):
		return a.Reserve1
	case IsStable(a.Token0):
		return a.Reserve0
	}
	return 0
}

// ReserveLiquidityUSD values both reserves given the USD price of token0.
// Token1 is converted through the mid price.
func (a *AMMState) ReserveLiquidityUSD(token0USD float64) float64 {
	if a.Reserve0 <= 0 || a.Reserve1 <= 0 || a.MidPrice <= 0 || token0USD <= 0 {
		return 0
	}
	v := (a.Reserve0 + a.Reserve1/a.MidPrice) * token0USD
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// FeeBpsAt evaluates the bridge fee curve at size, holding the end values flat
// outside the sampled range. Without a curve the flat FeeBps applies.
func (b *BridgeState) FeeBpsAt(sizeUSD float64) float64 {
	if len(b.FeeCurve) == 0 {
		return b.FeeBps
	}
	pts := make([]FeePoint, len(b.FeeCurve))
	copy(pts, b.FeeCurve)
	sort.Slice(pts, func(i, j int) bool { return pts[i].SizeUSD < pts[j].SizeUSD })

	if sizeUSD <= pts[0].SizeUSD {
		return pts[0].FeeBps
	}
	for i := 1; i < len(pts); i++ {
		if sizeUSD <= pts[i].SizeUSD {
			return lerp(pts[i-1].SizeUSD, pts[i-1].FeeBps, pts[i].SizeUSD, pts[i].FeeBps, sizeUSD)
		}
	}
	return pts[len(pts)-1].FeeBps
}

func sortedDepth(in []DepthPoint) []DepthPoint {
	pts := make([]DepthPoint, 0, len(in))
	for _, p := range in {
		if p.SizeUSD > 0 {
			pts = append(pts, p)
		}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].SizeUSD < pts[j].SizeUSD })
	return pts
}

func lerp(x0, y0, x1, y1, x float64) float64 {
	if x1 == x0 {
		return y1
	}
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}
