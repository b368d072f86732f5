// Package arbitrage provides pluggable opportunity detectors that read an
// immutable market snapshot and emit candidates, a registry that runs them
// concurrently, and the detection loop feeding the candidate queue.
package arbitrage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Strategy detects candidates from a snapshot. Implementations are pure
// functions of the snapshot and their own configuration.
type Strategy interface {
	Name() string
	// Detect returns zero or more candidates derived from snap.
	Detect(ctx context.Context, snap *domain.Snapshot) ([]domain.Candidate, error)
}

var candidateNS = uuid.MustParse("8f3a1c52-6b8e-4f0a-9a55-2f6d1e0c7b11")

// candidateID is stable for a strategy, snapshot version and path so repeated
// passes over the same snapshot produce the same ids.
func candidateID(strategy string, version uint64, legs []domain.CandidateLeg) string {
	var b strings.Builder
	b.WriteString(strategy)
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(version, 10))
	for _, l := range legs {
		b.WriteByte('|')
		b.WriteString(string(l.Chain))
		b.WriteByte(':')
		b.WriteString(l.Instrument)
		b.WriteByte(':')
		b.WriteString(l.AssetIn)
		b.WriteByte('>')
		b.WriteString(l.AssetOut)
	}
	return uuid.NewSHA1(candidateNS, []byte(b.String())).String()
}

func newCandidate(strategy, asset string, legs []domain.CandidateLeg, spreadBps, confidence float64, snap *domain.Snapshot) domain.Candidate {
	return domain.Candidate{
		ID:              candidateID(strategy, snap.Version, legs),
		Strategy:        strategy,
		Asset:           asset,
		Legs:            legs,
		RawSpreadBps:    spreadBps,
		Confidence:      confidence,
		SnapshotVersion: snap.Version,
		Snapshot:        snap,
		DetectedAt:      time.Now().UTC(),
	}
}

func swapLeg(p domain.Pool, in, out string) domain.CandidateLeg {
	return domain.CandidateLeg{
		Chain:      p.Chain,
		Action:     domain.ActionSwap,
		Protocol:   p.State.Protocol,
		Instrument: p.Instrument,
		AssetIn:    in,
		AssetOut:   out,
	}
}

// usableChains returns the snapshot chains the strategy may trade on, minus
// chains whose sequencer is reported down.
func usableChains(cfg domain.StrategyConfig, snap *domain.Snapshot) []domain.Chain {
	var out []domain.Chain
	for _, c := range snap.Chains() {
		if cfg.ChainApproved(c) && snap.Health(c) != domain.SequencerDown {
			out = append(out, c)
		}
	}
	return out
}

// stablePool is the deepest usable pool pairing asset with a stablecoin.
func stablePool(snap *domain.Snapshot, chain domain.Chain, asset string) (domain.Pool, float64, bool) {
	var best domain.Pool
	price, depth := 0.0, -1.0
	for _, p := range snap.Pools(chain) {
		if p.Stale || !p.State.Has(asset) || !domain.IsStable(p.State.Other(asset)) {
			continue
		}
		r, ok := p.State.Rate(asset, p.State.Other(asset))
		if ok && p.State.LiquidityUSD > depth {
			best, price, depth = p, r, p.State.LiquidityUSD
		}
	}
	return best, price, depth >= 0
}

func spreadBps(lo, hi float64) float64 {
	if lo <= 0 {
		return 0
	}
	return (hi - lo) / lo * 10_000
}
