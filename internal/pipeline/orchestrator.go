// Package pipeline wires the stages together: ingestion, detection,
// simulation workers, batched decisions, intent emission and feedback.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/arbitrage"
	"github.com/alanyoungcy/arbengine/internal/calibration"
	"github.com/alanyoungcy/arbengine/internal/decision"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/feedback"
	"github.com/alanyoungcy/arbengine/internal/ingest"
	"github.com/alanyoungcy/arbengine/internal/intent"
	"github.com/alanyoungcy/arbengine/internal/simulation"
	"github.com/alanyoungcy/arbengine/internal/state"
)

// Config sizes the concurrent stages.
type Config struct {
	SimWorkers       int
	ResultBuffer     int
	DecisionInterval time.Duration
	Clock            func() time.Time
}

// Stages are the components the orchestrator drives. Sink, Receipts,
// Intents, Audit, Checkpointer and Archiver are optional.
type Stages struct {
	Ingestor     *ingest.Ingestor
	Sources      []domain.FeatureSource
	State        *state.Store
	Detector     *arbitrage.Detector
	Queue        *arbitrage.CandidateQueue
	Simulator    *simulation.Engine
	Calibration  *calibration.Store
	Decision     *decision.Engine
	Builder      *intent.Builder
	Sink         domain.IntentSink
	Feedback     *feedback.Loop
	Receipts     domain.ReceiptSource
	Intents      domain.IntentStore
	Audit        domain.AuditStore
	Checkpointer *Checkpointer
	Archiver     *Archiver
}

// Stats are cumulative pipeline counters.
type Stats struct {
	Evaluated   uint64
	SimFailed   uint64
	Invalidated uint64
	Emitted     uint64
	EmitFailed  uint64
	Expired     uint64
}

// Orchestrator runs every stage as a goroutine of one errgroup.
type Orchestrator struct {
	s       Stages
	cfg     Config
	results chan domain.EvaluationResult
	logger  *slog.Logger

	evaluated   atomic.Uint64
	simFailed   atomic.Uint64
	invalidated atomic.Uint64
	emitted     atomic.Uint64
	emitFailed  atomic.Uint64
	expired     atomic.Uint64
}

// NewOrchestrator creates an orchestrator. A nil Sink logs intents instead of
// publishing them.
func NewOrchestrator(s Stages, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.SimWorkers <= 0 {
		cfg.SimWorkers = 4
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = 256
	}
	if cfg.DecisionInterval <= 0 {
		cfg.DecisionInterval = 250 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger = logger.With(slog.String("component", "pipeline"))
	if s.Sink == nil {
		s.Sink = NewLogSink(logger)
	}
	return &Orchestrator{
		s:       s,
		cfg:     cfg,
		results: make(chan domain.EvaluationResult, cfg.ResultBuffer),
		logger:  logger,
	}
}

// Run starts all stages. A stage failing with a non-context error cancels the
// rest and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline starting",
		slog.Int("sim_workers", o.cfg.SimWorkers),
		slog.Duration("decision_interval", o.cfg.DecisionInterval),
		slog.Int("sources", len(o.s.Sources)),
	)

	g, ctx := errgroup.WithContext(ctx)
	stage := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			err := fn(ctx)
			if ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("%s: %w", name, err)
		})
	}

	stage("ingest", func(ctx context.Context) error { return o.s.Ingestor.Run(ctx, o.s.Sources...) })
	stage("detector", o.s.Detector.Run)
	for range o.cfg.SimWorkers {
		stage("simulation", o.simulate)
	}
	stage("decision", o.decide)
	stage("feedback", func(ctx context.Context) error { return o.s.Feedback.Run(ctx, o.s.Receipts) })
	if o.s.Checkpointer != nil {
		stage("checkpoint", o.s.Checkpointer.Run)
	}
	if o.s.Archiver != nil {
		stage("archiver", o.s.Archiver.RunCron)
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped cleanly")
	return nil
}

func (o *Orchestrator) simulate(ctx context.Context) error {
	for {
		c, err := o.s.Queue.Pop(ctx)
		if err != nil {
			return err
		}
		res, ok := o.evaluate(ctx, c)
		if !ok {
			continue
		}
		select {
		case o.results <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// evaluate simulates one candidate unless a reorg has invalidated its
// snapshot since detection.
func (o *Orchestrator) evaluate(ctx context.Context, c domain.Candidate) (domain.EvaluationResult, bool) {
	if o.s.State != nil && o.s.State.Invalidated(c.SnapshotVersion, c.Chains()) {
		o.invalidated.Add(1)
		o.logger.DebugContext(ctx, "candidate cancelled by reorg",
			slog.String("candidate_id", c.ID),
			slog.String("error", domain.ErrSnapshotInvalidated.Error()),
		)
		return domain.EvaluationResult{}, false
	}
	res, err := o.s.Simulator.Evaluate(ctx, c, o.s.Calibration.Load())
	if err != nil {
		o.simFailed.Add(1)
		o.logger.DebugContext(ctx, "simulation failed",
			slog.String("candidate_id", c.ID),
			slog.String("strategy", c.Strategy),
			slog.String("error", err.Error()),
		)
		return domain.EvaluationResult{}, false
	}
	o.evaluated.Add(1)
	return res, true
}

func (o *Orchestrator) decide(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.DecisionInterval)
	defer ticker.Stop()
	var batch []domain.EvaluationResult
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-o.results:
			batch = append(batch, res)
		case <-ticker.C:
			if len(batch) == 0 {
				continue
			}
			o.Process(ctx, batch)
			batch = batch[:0]
		}
	}
}

// Process runs one decision pass over results and emits the approved set.
func (o *Orchestrator) Process(ctx context.Context, results []domain.EvaluationResult) []domain.TradeIntent {
	approved := o.s.Decision.Decide(ctx, results)
	out := make([]domain.TradeIntent, 0, len(approved))
	for _, a := range approved {
		if ti, ok := o.emit(ctx, a); ok {
			out = append(out, ti)
		}
	}
	return out
}

func (o *Orchestrator) emit(ctx context.Context, a decision.Approved) (domain.TradeIntent, bool) {
	res := a.Result()
	ti, err := o.s.Builder.Build(a)
	if err != nil {
		o.logger.ErrorContext(ctx, "intent build failed",
			slog.String("candidate_id", res.CandidateID),
			slog.String("error", err.Error()),
		)
		return domain.TradeIntent{}, false
	}
	if ti.Expired(o.cfg.Clock()) {
		o.expired.Add(1)
		return domain.TradeIntent{}, false
	}

	// Tracked before publishing: an executor may answer before Emit returns.
	book := o.s.Decision.Book()
	book.Open(ti.CorrelationID, ti.Asset, ti.SizeUSD)
	o.s.Feedback.Track(ti, res)
	if err := o.s.Sink.Emit(ctx, ti); err != nil {
		o.s.Feedback.Untrack(ti.CorrelationID)
		book.Release(ti.CorrelationID)
		o.emitFailed.Add(1)
		o.logger.ErrorContext(ctx, "intent emit failed",
			slog.String("correlation_id", ti.CorrelationID),
			slog.String("error", err.Error()),
		)
		return domain.TradeIntent{}, false
	}
	o.emitted.Add(1)

	if o.s.Intents != nil {
		if err := o.s.Intents.Insert(ctx, ti, res); err != nil {
			o.logger.WarnContext(ctx, "intent persist failed",
				slog.String("correlation_id", ti.CorrelationID),
				slog.String("error", err.Error()),
			)
		}
	}
	if o.s.Audit != nil {
		if err := o.s.Audit.Log(ctx, "intent.emitted", map[string]any{
			"correlation_id": ti.CorrelationID,
			"candidate_id":   res.CandidateID,
			"strategy":       ti.Strategy,
			"asset":          ti.Asset,
			"size_usd":       ti.SizeUSD,
			"expected_pnl":   ti.ExpectedPnLUSD,
			"score":          a.Score(),
		}); err != nil {
			o.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	return ti, true
}

// Step runs detection, simulation and decision once, synchronously, over the
// current state. Replay mode drives the pipeline with it.
func (o *Orchestrator) Step(ctx context.Context) []domain.TradeIntent {
	o.s.Detector.RunOnce(ctx)
	var results []domain.EvaluationResult
	for {
		c, ok := o.s.Queue.TryPop()
		if !ok {
			break
		}
		if res, ok := o.evaluate(ctx, c); ok {
			results = append(results, res)
		}
	}
	if len(results) == 0 {
		return nil
	}
	return o.Process(ctx, results)
}

// Stats returns cumulative counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Evaluated:   o.evaluated.Load(),
		SimFailed:   o.simFailed.Load(),
		Invalidated: o.invalidated.Load(),
		Emitted:     o.emitted.Load(),
		EmitFailed:  o.emitFailed.Load(),
		Expired:     o.expired.Load(),
	}
}
