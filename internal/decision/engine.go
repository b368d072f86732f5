// Package decision turns evaluated candidates into the approved set: hard
// risk filters, a risk-adjusted score, and greedy top-N selection under
// per-asset exposure caps.
package decision

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// HealthSource reports the live sequencer status of a chain.
type HealthSource interface {
	ChainHealth(chain domain.Chain) domain.SequencerStatus
}

// InvalidationSource reports whether a reorg invalidated a snapshot version
// on any of the given chains.
type InvalidationSource interface {
	Invalidated(version uint64, chains []domain.Chain) bool
}

type unknownHealth struct{}

func (unknownHealth) ChainHealth(domain.Chain) domain.SequencerStatus { return domain.SequencerUnknown }

// Approved is an evaluation selected by the engine. Only this package can
// construct a non-zero value, so anything holding one went through Decide.
type Approved struct {
	result domain.EvaluationResult
	score  float64
	rank   int
}

// Result returns the selected evaluation.
func (a Approved) Result() domain.EvaluationResult { return a.result }

// Score returns the ranking score.
func (a Approved) Score() float64 { return a.score }

// Rank is the 1-based position within its decision pass.
func (a Approved) Rank() int { return a.rank }

// IsZero reports whether a was not produced by Decide.
func (a Approved) IsZero() bool { return a.rank == 0 }

// Config wires the engine's live inputs.
type Config struct {
	Policy       domain.RiskPolicy
	Health       HealthSource
	Invalidation InvalidationSource
	Book         *ExposureBook
}

// Stats are cumulative decision counters.
type Stats struct {
	Evaluated uint64
	Rejected  uint64
	Skipped   uint64
	Approved  uint64
}

// Engine applies filters and selection. Decide is safe for concurrent use;
// the policy can be replaced while running.
type Engine struct {
	cfg    Config
	policy atomic.Pointer[domain.RiskPolicy]
	logger *slog.Logger

	evaluated atomic.Uint64
	rejected  atomic.Uint64
	skipped   atomic.Uint64
	approved  atomic.Uint64
}

// New creates a decision engine.
func New(cfg Config, logger *slog.Logger) *Engine {
	if cfg.Book == nil {
		cfg.Book = NewExposureBook()
	}
	if cfg.Health == nil {
		cfg.Health = unknownHealth{}
	}
	e := &Engine{cfg: cfg, logger: logger.With(slog.String("component", "decision"))}
	pol := cfg.Policy
	e.policy.Store(&pol)
	return e
}

// Policy returns the active policy.
func (e *Engine) Policy() *domain.RiskPolicy { return e.policy.Load() }

// SetPolicy replaces the active policy for subsequent passes.
func (e *Engine) SetPolicy(p domain.RiskPolicy) { e.policy.Store(&p) }

// Book returns the exposure book the engine selects against.
func (e *Engine) Book() *ExposureBook { return e.cfg.Book }

type ranked struct {
	res   domain.EvaluationResult
	score float64
}

// Decide filters, scores and selects from one batch of evaluations. A
// candidate whose size would push its asset past the cap is skipped, and
// lower-ranked candidates of other assets are still considered.
func (e *Engine) Decide(ctx context.Context, results []domain.EvaluationResult) []Approved {
	pol := e.Policy()
	e.evaluated.Add(uint64(len(results)))

	survivors := make([]ranked, 0, len(results))
	for _, res := range results {
		if err := e.Filter(res); err != nil {
			e.rejected.Add(1)
			e.logger.DebugContext(ctx, "candidate rejected",
				slog.String("candidate_id", res.CandidateID),
				slog.String("strategy", res.Strategy),
				slog.String("error", err.Error()),
			)
			continue
		}
		survivors = append(survivors, ranked{res: res, score: Score(pol, res)})
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.res.SnapshotVersion != b.res.SnapshotVersion {
			return a.res.SnapshotVersion < b.res.SnapshotVersion
		}
		return a.res.CandidateID < b.res.CandidateID
	})

	used := make(map[string]float64)
	var out []Approved
	for _, s := range survivors {
		if pol.TopN > 0 && len(out) >= pol.TopN {
			break
		}
		asset := s.res.Asset
		if _, ok := used[asset]; !ok {
			used[asset] = e.cfg.Book.Exposure(asset)
		}
		if limit := pol.AssetCap(asset); limit > 0 && used[asset]+s.res.OptimalSizeUSD > limit {
			e.skipped.Add(1)
			e.logger.DebugContext(ctx, "candidate skipped by exposure cap",
				slog.String("candidate_id", s.res.CandidateID),
				slog.String("asset", asset),
				slog.Float64("exposure_usd", used[asset]),
				slog.Float64("size_usd", s.res.OptimalSizeUSD),
				slog.Float64("cap_usd", limit),
			)
			continue
		}
		used[asset] += s.res.OptimalSizeUSD
		out = append(out, Approved{result: s.res, score: s.score, rank: len(out) + 1})
	}

	e.approved.Add(uint64(len(out)))
	if len(results) > 0 {
		e.logger.InfoContext(ctx, "decision pass",
			slog.Int("evaluated", len(results)),
			slog.Int("survived", len(survivors)),
			slog.Int("approved", len(out)),
		)
	}
	return out
}

// Stats returns cumulative counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Evaluated: e.evaluated.Load(),
		Rejected:  e.rejected.Load(),
		Skipped:   e.skipped.Load(),
		Approved:  e.approved.Load(),
	}
}
