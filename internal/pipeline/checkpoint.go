package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbengine/internal/calibration"
	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Checkpointer persists the calibration state whenever its version moves,
// and restores the newest checkpoint on start.
type Checkpointer struct {
	store    *calibration.Store
	targets  []domain.CalibrationCache
	interval time.Duration
	logger   *slog.Logger

	saved uint64
}

// NewCheckpointer writes to every target; the first target that holds a
// state wins on Restore.
func NewCheckpointer(store *calibration.Store, interval time.Duration, logger *slog.Logger, targets ...domain.CalibrationCache) *Checkpointer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Checkpointer{
		store:    store,
		targets:  targets,
		interval: interval,
		logger:   logger.With(slog.String("component", "calibration_checkpoint")),
	}
}

// Restore loads the most recent checkpoint into the store. A missing
// checkpoint leaves the store untouched.
func (c *Checkpointer) Restore(ctx context.Context) (bool, error) {
	var best *domain.CalibrationState
	var errs []error
	for _, t := range c.targets {
		st, err := t.LoadCalibration(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if best == nil || st.UpdatedAt.After(best.UpdatedAt) {
			best = st
		}
	}
	if best == nil {
		return false, errors.Join(errs...)
	}
	c.store.Replace(best)
	c.saved = c.store.Load().Version
	c.logger.Info("calibration restored",
		slog.Uint64("version", c.saved),
		slog.Time("updated_at", best.UpdatedAt),
	)
	return true, nil
}

// Save writes the current state if it changed since the last save.
func (c *Checkpointer) Save(ctx context.Context) error {
	st := c.store.Load()
	if st.Version == c.saved {
		return nil
	}
	var errs []error
	for _, t := range c.targets {
		if err := t.SaveCalibration(ctx, st); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.saved = st.Version
	c.logger.Debug("calibration checkpointed", slog.Uint64("version", st.Version))
	return nil
}

// Run saves on every tick and once more on shutdown.
func (c *Checkpointer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			err := c.Save(flushCtx)
			cancel()
			if err != nil {
				c.logger.Warn("final calibration checkpoint failed", slog.String("error", err.Error()))
			}
			return ctx.Err()
		case <-ticker.C:
			if err := c.Save(ctx); err != nil {
				c.logger.Warn("calibration checkpoint failed", slog.String("error", err.Error()))
			}
		}
	}
}
