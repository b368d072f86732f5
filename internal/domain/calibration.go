package domain

import (
	"maps"
	"math"
	"time"
)

// CalibrationBucket keys per-venue coefficients.
func CalibrationBucket(chain Chain, protocol string) string {
	return string(chain) + "/" + protocol
}

// LatencyDist tracks realized over predicted settlement time for a bridge.
type LatencyDist struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// CalibrationState holds the coefficients that correct simulation toward
// realized outcomes. A published state is never mutated; writers Clone it.
type CalibrationState struct {
	Version            uint64                 `json:"version"`
	UpdatedAt          time.Time              `json:"updated_at"`
	SlippageBias       map[string]float64     `json:"slippage_bias"`
	GasVariance        map[Chain]float64      `json:"gas_variance"`
	BridgeLatency      map[string]LatencyDist `json:"bridge_latency"`
	StrategySuccess    map[string]float64     `json:"strategy_success"`
	DefaultSuccessRate float64                `json:"default_success_rate"`
}

// NewCalibrationState returns an unbiased state.
func NewCalibrationState(defaultSuccessRate float64) *CalibrationState {
	return &CalibrationState{
		SlippageBias:       make(map[string]float64),
		GasVariance:        make(map[Chain]float64),
		BridgeLatency:      make(map[string]LatencyDist),
		StrategySuccess:    make(map[string]float64),
		DefaultSuccessRate: defaultSuccessRate,
	}
}

// Clone deep-copies the state.
func (c *CalibrationState) Clone() *CalibrationState {
	out := *c
	out.SlippageBias = maps.Clone(c.SlippageBias)
	out.GasVariance = maps.Clone(c.GasVariance)
	out.BridgeLatency = maps.Clone(c.BridgeLatency)
	out.StrategySuccess = maps.Clone(c.StrategySuccess)
	if out.SlippageBias == nil {
		out.SlippageBias = make(map[string]float64)
	}
	if out.GasVariance == nil {
		out.GasVariance = make(map[Chain]float64)
	}
	if out.BridgeLatency == nil {
		out.BridgeLatency = make(map[string]LatencyDist)
	}
	if out.StrategySuccess == nil {
		out.StrategySuccess = make(map[string]float64)
	}
	return &out
}

// SlippageFactor multiplies modeled slippage for a venue.
func (c *CalibrationState) SlippageFactor(chain Chain, protocol string) float64 {
	if v, ok := c.SlippageBias[CalibrationBucket(chain, protocol)]; ok {
		return v
	}
	return 1
}

// GasFactor multiplies modeled gas cost on a chain.
func (c *CalibrationState) GasFactor(chain Chain) float64 {
	if v, ok := c.GasVariance[chain]; ok {
		return v
	}
	return 1
}

// LatencyFactor multiplies the advertised settlement time of a bridge. One
// standard deviation is added to the mean.
func (c *CalibrationState) LatencyFactor(protocol string) float64 {
	d, ok := c.BridgeLatency[protocol]
	if !ok {
		return 1
	}
	return d.Mean + math.Sqrt(math.Max(d.Variance, 0))
}

// SuccessRate is the historical success rate of a strategy.
func (c *CalibrationState) SuccessRate(strategy string) float64 {
	if v, ok := c.StrategySuccess[strategy]; ok {
		return v
	}
	return c.DefaultSuccessRate
}
