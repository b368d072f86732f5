// Package feedback reconciles execution receipts against emitted intents and
// folds the prediction error into the calibration state.
package feedback

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/calibration"
	"github.com/alanyoungcy/arbengine/internal/decision"
	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Config bounds the reconciliation log.
type Config struct {
	Capacity      int
	Retention     time.Duration
	SweepInterval time.Duration
	Tuning        calibration.Tuning
	Clock         func() time.Time
}

type tracked struct {
	intent    domain.TradeIntent
	eval      domain.EvaluationResult
	trackedAt time.Time
	released  bool
	el        *list.Element
}

// Errors are the relative prediction errors of one reconciliation, as
// (realized - predicted) / |predicted|. A component without a usable
// prediction is NaN.
type Errors struct {
	PnL      float64
	Slippage float64
	Gas      float64
}

// Performance summarises reconciled outcomes.
type Performance struct {
	Tracked         int
	Reconciled      uint64
	Successes       uint64
	Unmatched       uint64
	Expired         uint64
	HitRate         float64
	MeanPnLError    float64
	RealizedPnLUSD  float64
	PredictedPnLUSD float64
}

// Loop owns the bounded log of emitted intents awaiting receipts.
type Loop struct {
	cfg     Config
	calib   *calibration.Store
	book    *decision.ExposureBook
	intents domain.IntentStore
	logger  *slog.Logger

	mu    sync.Mutex
	log   map[string]*tracked
	order *list.List
	perf  Performance
	errN  uint64
}

// New creates a feedback loop. book and intents may be nil.
func New(cfg Config, calib *calibration.Store, book *decision.ExposureBook, intents domain.IntentStore, logger *slog.Logger) *Loop {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10_000
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Tuning == (calibration.Tuning{}) {
		cfg.Tuning = calibration.DefaultTuning()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Loop{
		cfg:     cfg,
		calib:   calib,
		book:    book,
		intents: intents,
		logger:  logger.With(slog.String("component", "feedback")),
		log:     make(map[string]*tracked),
		order:   list.New(),
	}
}

// Track records an emitted intent with the evaluation it was built from. When
// the log is full the oldest entry is dropped and its exposure released.
func (l *Loop) Track(intent domain.TradeIntent, eval domain.EvaluationResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if old, ok := l.log[intent.CorrelationID]; ok {
		l.dropLocked(old)
	}
	for l.order.Len() >= l.cfg.Capacity {
		oldest := l.order.Front().Value.(*tracked)
		l.logger.Warn("feedback log full, dropping oldest intent",
			slog.String("correlation_id", oldest.intent.CorrelationID))
		l.releaseLocked(oldest)
		l.dropLocked(oldest)
	}
	t := &tracked{intent: intent, eval: eval, trackedAt: l.cfg.Clock()}
	t.el = l.order.PushBack(t)
	l.log[intent.CorrelationID] = t
}

// Untrack forgets an intent that was never published. Its exposure is left
// to the caller. It reports whether the intent was tracked.
func (l *Loop) Untrack(correlationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.log[correlationID]
	if !ok {
		return false
	}
	l.dropLocked(t)
	return true
}

// Reconcile matches a receipt to its intent, updates calibration and releases
// the intent's exposure. An unknown correlation id returns ErrNoMatch.
func (l *Loop) Reconcile(ctx context.Context, r domain.ExecutionReceipt) error {
	l.mu.Lock()
	t, ok := l.log[r.CorrelationID]
	if !ok {
		l.perf.Unmatched++
		l.mu.Unlock()
		l.logger.WarnContext(ctx, "receipt without matching intent",
			slog.String("correlation_id", r.CorrelationID))
		return fmt.Errorf("feedback: reconcile %s: %w", r.CorrelationID, domain.ErrNoMatch)
	}
	l.releaseLocked(t)
	l.dropLocked(t)
	l.mu.Unlock()

	errs := relativeErrors(t.eval, r)
	l.calib.Update(func(next *domain.CalibrationState) {
		l.apply(next, t, r)
	})

	l.mu.Lock()
	l.perf.Reconciled++
	if r.Success {
		l.perf.Successes++
	}
	l.perf.RealizedPnLUSD += r.RealizedPnLUSD
	l.perf.PredictedPnLUSD += t.eval.NetPnLUSD
	if !math.IsNaN(errs.PnL) {
		l.errN++
		l.perf.MeanPnLError += (errs.PnL - l.perf.MeanPnLError) / float64(l.errN)
	}
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "receipt reconciled",
		slog.String("correlation_id", r.CorrelationID),
		slog.String("strategy", t.intent.Strategy),
		slog.Bool("success", r.Success),
		slog.Float64("pnl_error", errs.PnL),
		slog.Float64("slippage_error", errs.Slippage),
		slog.Float64("gas_error", errs.Gas),
	)

	if l.intents != nil {
		if err := l.intents.MarkReconciled(ctx, r.CorrelationID, r); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("feedback: persist reconciliation %s: %w", r.CorrelationID, err)
		}
	}
	return nil
}

// apply folds one receipt into next. Each coefficient moves toward the value
// that would have predicted the realized outcome, bounded by the tuning.
func (l *Loop) apply(next *domain.CalibrationState, t *tracked, r domain.ExecutionReceipt) {
	tun := l.cfg.Tuning
	eval := t.eval

	if eval.Costs.GasUSD > 0 && r.RealizedGasUSD > 0 {
		ratio := r.RealizedGasUSD / eval.Costs.GasUSD
		for _, c := range gasChains(eval) {
			cur := next.GasFactor(c)
			next.GasVariance[c] = tun.Step(cur, cur*ratio)
		}
	}

	if eval.SlippageBps > 0 && r.RealizedSlippageBps >= 0 {
		ratio := r.RealizedSlippageBps / eval.SlippageBps
		for _, b := range eval.SwapBuckets() {
			cur := 1.0
			if v, ok := next.SlippageBias[b]; ok {
				cur = v
			}
			next.SlippageBias[b] = tun.Step(cur, cur*ratio)
		}
	}

	if eval.BridgeLatencySecs > 0 && r.BridgeLatencySecs > 0 {
		ratio := r.BridgeLatencySecs / eval.BridgeLatencySecs
		for _, leg := range eval.Legs {
			if leg.Action != domain.ActionBridge {
				continue
			}
			d, ok := next.BridgeLatency[leg.Protocol]
			if !ok {
				d = domain.LatencyDist{Mean: 1}
			}
			d.Mean, d.Variance = tun.Dist(d.Mean, d.Variance, d.Mean*ratio)
			next.BridgeLatency[leg.Protocol] = d
		}
	}

	outcome := 0.0
	if r.Success {
		outcome = 1
	}
	next.StrategySuccess[t.intent.Strategy] = tun.Rate(next.SuccessRate(t.intent.Strategy), outcome)
}

func gasChains(eval domain.EvaluationResult) []domain.Chain {
	seen := make(map[domain.Chain]bool)
	var out []domain.Chain
	for _, leg := range eval.Legs {
		if leg.GasUSD > 0 && !seen[leg.Chain] {
			seen[leg.Chain] = true
			out = append(out, leg.Chain)
		}
	}
	if len(out) == 0 {
		return eval.Chains
	}
	return out
}

func relativeErrors(eval domain.EvaluationResult, r domain.ExecutionReceipt) Errors {
	return Errors{
		PnL:      relErr(eval.NetPnLUSD, r.RealizedPnLUSD),
		Slippage: relErr(eval.SlippageBps, r.RealizedSlippageBps),
		Gas:      relErr(eval.Costs.GasUSD, r.RealizedGasUSD),
	}
}

func relErr(predicted, realized float64) float64 {
	if predicted == 0 {
		return math.NaN()
	}
	return (realized - predicted) / math.Abs(predicted)
}

// Sweep releases the exposure of intents that expired without a receipt and
// drops entries older than the retention window. It returns the number of
// entries dropped.
func (l *Loop) Sweep(ctx context.Context) int {
	now := l.cfg.Clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for el := l.order.Front(); el != nil; {
		t := el.Value.(*tracked)
		el = el.Next()
		if !t.released && t.intent.Expired(now) {
			l.releaseLocked(t)
			l.perf.Expired++
		}
		if now.Sub(t.trackedAt) > l.cfg.Retention {
			l.releaseLocked(t)
			l.dropLocked(t)
			dropped++
		}
	}
	if dropped > 0 {
		l.logger.DebugContext(ctx, "feedback log swept", slog.Int("dropped", dropped))
	}
	return dropped
}

func (l *Loop) releaseLocked(t *tracked) {
	if t.released {
		return
	}
	t.released = true
	if l.book != nil {
		l.book.Release(t.intent.CorrelationID)
	}
}

func (l *Loop) dropLocked(t *tracked) {
	l.order.Remove(t.el)
	delete(l.log, t.intent.CorrelationID)
}

// Performance returns a summary of reconciled outcomes.
func (l *Loop) Performance() Performance {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.perf
	p.Tracked = l.order.Len()
	if p.Reconciled > 0 {
		p.HitRate = float64(p.Successes) / float64(p.Reconciled)
	}
	return p
}

// Run reconciles receipts from src and sweeps the log until ctx ends. A nil
// src only sweeps.
func (l *Loop) Run(ctx context.Context, src domain.ReceiptSource) error {
	g, ctx := errgroup.WithContext(ctx)

	if src != nil {
		g.Go(func() error {
			return src.Run(ctx, func(r domain.ExecutionReceipt) {
				if err := l.Reconcile(ctx, r); err != nil && !errors.Is(err, domain.ErrNoMatch) {
					l.logger.ErrorContext(ctx, "reconcile failed",
						slog.String("correlation_id", r.CorrelationID),
						slog.String("error", err.Error()),
					)
				}
			})
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(l.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				l.Sweep(ctx)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
