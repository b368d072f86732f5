package calibration

import "math"

// Tuning bounds every coefficient update.
type Tuning struct {
	Alpha          float64
	MaxStep        float64
	MinCoefficient float64
	MaxCoefficient float64
}

// DefaultTuning is a slow EWMA capped at five points per observation.
func DefaultTuning() Tuning {
	return Tuning{Alpha: 0.1, MaxStep: 0.05, MinCoefficient: 0.25, MaxCoefficient: 4}
}

// Step moves prev toward observed by Alpha, never by more than MaxStep, and
// keeps the result within the coefficient bounds.
func (t Tuning) Step(prev, observed float64) float64 {
	if math.IsNaN(observed) || math.IsInf(observed, 0) {
		return prev
	}
	delta := t.Alpha * (observed - prev)
	delta = math.Max(-t.MaxStep, math.Min(t.MaxStep, delta))
	return clamp(prev+delta, t.MinCoefficient, t.MaxCoefficient)
}

// Rate moves a probability toward outcome (0 or 1) by Alpha with the same step
// bound, clamped to [0, 1].
func (t Tuning) Rate(prev, outcome float64) float64 {
	delta := t.Alpha * (outcome - prev)
	delta = math.Max(-t.MaxStep, math.Min(t.MaxStep, delta))
	return clamp(prev+delta, 0, 1)
}

// Dist updates an EWMA mean and variance of observed.
func (t Tuning) Dist(mean, variance, observed float64) (float64, float64) {
	if math.IsNaN(observed) || math.IsInf(observed, 0) {
		return mean, variance
	}
	next := t.Step(mean, observed)
	diff := observed - mean
	variance = (1 - t.Alpha) * (variance + t.Alpha*diff*diff)
	return next, variance
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
