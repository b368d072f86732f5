package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Archiver periodically moves reconciled intents to cold storage.
type Archiver struct {
	archiver domain.Archiver
	schedule cronSchedule
	expr     string
	clock    func() time.Time
	logger   *slog.Logger
	locks    domain.LockManager
	lockTTL  time.Duration

	lastRun time.Time
}

// archiveLockKey elects one archiving replica per run.
const archiveLockKey = "archiver"

// NewArchiver creates an archiver that runs on the cron expression and, on
// its first run, covers the preceding lookback window.
func NewArchiver(a domain.Archiver, cronExpr string, lookback time.Duration, logger *slog.Logger) (*Archiver, error) {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("pipeline: archiver: %w", err)
	}
	now := time.Now().UTC()
	return &Archiver{
		archiver: a,
		schedule: sched,
		expr:     cronExpr,
		clock:    func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "archiver")),
		lastRun:  now.Add(-lookback),
	}, nil
}

// WithLock makes each run hold a distributed lock for ttl. A run that finds
// the lock held is skipped.
func (a *Archiver) WithLock(locks domain.LockManager, ttl time.Duration) *Archiver {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	a.locks, a.lockTTL = locks, ttl
	return a
}

// Run archives everything reconciled since the previous run.
func (a *Archiver) Run(ctx context.Context) error {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, a.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.Info("archive run skipped, another replica holds the lock")
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: archiver lock: %w", err)
		}
		defer unlock()
	}
	since := a.lastRun
	started := a.clock()
	n, err := a.archiver.ArchiveReconciled(ctx, since)
	if err != nil {
		return fmt.Errorf("pipeline: archive reconciled since %s: %w", since.Format(time.RFC3339), err)
	}
	a.lastRun = started
	a.logger.Info("archive run complete",
		slog.Time("since", since),
		slog.Int64("archived", n),
	)
	return nil
}

// RunCron runs the archiver on its schedule until ctx is cancelled.
func (a *Archiver) RunCron(ctx context.Context) error {
	a.logger.Info("archiver cron started", slog.String("cron", a.expr))
	for {
		next, err := a.schedule.next(a.clock())
		if err != nil {
			return err
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
