package decision

import "github.com/alanyoungcy/arbengine/internal/domain"

// RiskScore grows with position size relative to ExposureNormUSD and with the
// Herfindahl concentration of legs across chains. It is at least 1.
func RiskScore(pol *domain.RiskPolicy, res domain.EvaluationResult) float64 {
	score := 1.0
	if pol.ExposureNormUSD > 0 {
		score += pol.ExposureWeight * res.OptimalSizeUSD / pol.ExposureNormUSD
	}
	score += pol.ConcentrationWeight * chainHHI(res.Legs)
	return score
}

// Score ranks a surviving evaluation: expected PnL per unit of risk.
func Score(pol *domain.RiskPolicy, res domain.EvaluationResult) float64 {
	return res.NetPnLUSD * res.SuccessProb / RiskScore(pol, res)
}

func chainHHI(legs []domain.SimulatedLeg) float64 {
	if len(legs) == 0 {
		return 0
	}
	counts := make(map[domain.Chain]int, len(legs))
	for _, l := range legs {
		counts[l.Chain]++
	}
	n := float64(len(legs))
	hhi := 0.0
	for _, c := range counts {
		share := float64(c) / n
		hhi += share * share
	}
	return hhi
}
