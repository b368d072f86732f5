package arbitrage

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// SnapshotSource supplies point-in-time views of market state.
type SnapshotSource interface {
	Snapshot() *domain.Snapshot
}

// Detector runs the enabled strategies on a ticker and feeds the candidate
// queue.
type Detector struct {
	registry *Registry
	state    SnapshotSource
	queue    *CandidateQueue
	interval time.Duration
	maxPass  int
	logger   *slog.Logger

	lastVersion uint64
}

// DetectorConfig configures the detector.
type DetectorConfig struct {
	Registry *Registry
	State    SnapshotSource
	Queue    *CandidateQueue
	Interval time.Duration
	// MaxCandidatesPerPass keeps the widest spreads of a pass; zero keeps all.
	MaxCandidatesPerPass int
	Logger               *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Detector{
		registry: cfg.Registry,
		state:    cfg.State,
		queue:    cfg.Queue,
		interval: cfg.Interval,
		maxPass:  cfg.MaxCandidatesPerPass,
		logger:   cfg.Logger.With(slog.String("component", "arb_detector")),
	}
}

// Run detects on every tick until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("arb detector started",
		slog.Any("strategies", d.registry.List()),
		slog.Duration("interval", d.interval),
	)
	defer d.logger.Info("arb detector stopped")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce takes one snapshot, runs a registry pass over it and enqueues the
// result. Passes over an unchanged snapshot version are skipped. It returns
// the number of candidates accepted by the queue.
func (d *Detector) RunOnce(ctx context.Context) int {
	snap := d.state.Snapshot()
	if snap.Version == d.lastVersion {
		return 0
	}
	d.lastVersion = snap.Version

	cands := d.registry.RunPass(ctx, snap)
	if d.maxPass > 0 && len(cands) > d.maxPass {
		sort.Slice(cands, func(i, j int) bool { return cands[i].RawSpreadBps > cands[j].RawSpreadBps })
		cands = cands[:d.maxPass]
	}

	accepted := 0
	for _, c := range cands {
		if d.queue.Push(c) {
			accepted++
		}
	}
	if len(cands) > 0 {
		d.logger.DebugContext(ctx, "detection pass",
			slog.Uint64("snapshot_version", snap.Version),
			slog.Int("candidates", len(cands)),
			slog.Int("accepted", accepted),
		)
	}
	return accepted
}
