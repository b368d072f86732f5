// Package ingest fans normalized features from their sources into the market
// state store through a sharded worker pool.
package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Applier receives features in per-key order. *state.Store implements it.
type Applier interface {
	Update(f domain.Feature) (uint64, error)
}

// Config sizes the worker pool.
type Config struct {
	Shards      int
	ShardBuffer int
}

// Stats are cumulative ingestion counters.
type Stats struct {
	Submitted uint64
	Applied   uint64
	Dropped   uint64
	Rejected  uint64
	Reorgs    uint64
}

// Ingestor routes each feature to the shard owning its (chain, instrument)
// key, so updates to one key are applied in arrival order while different
// keys proceed in parallel.
type Ingestor struct {
	cfg    Config
	store  Applier
	shards []chan domain.Feature
	warn   *rate.Limiter
	logger *slog.Logger

	submitted atomic.Uint64
	applied   atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
	reorgs    atomic.Uint64
}

// New creates an ingestor with Shards workers, each behind a buffer of
// ShardBuffer features.
func New(cfg Config, store Applier, logger *slog.Logger) *Ingestor {
	if cfg.Shards <= 0 {
		cfg.Shards = 8
	}
	if cfg.ShardBuffer <= 0 {
		cfg.ShardBuffer = 1024
	}
	shards := make([]chan domain.Feature, cfg.Shards)
	for i := range shards {
		shards[i] = make(chan domain.Feature, cfg.ShardBuffer)
	}
	return &Ingestor{
		cfg:    cfg,
		store:  store,
		shards: shards,
		warn:   rate.NewLimiter(rate.Every(5*time.Second), 1),
		logger: logger.With(slog.String("component", "ingest")),
	}
}

func (i *Ingestor) shardFor(f domain.Feature) int {
	h := fnv.New32a()
	h.Write([]byte(f.Chain))
	h.Write([]byte{'/'})
	h.Write([]byte(f.Instrument))
	return int(h.Sum32() % uint32(len(i.shards)))
}

// Submit enqueues f without blocking. It returns false when the owning shard
// is full and the feature was dropped.
func (i *Ingestor) Submit(f domain.Feature) bool {
	i.submitted.Add(1)
	f = f.Normalize()
	select {
	case i.shards[i.shardFor(f)] <- f:
		return true
	default:
		n := i.dropped.Add(1)
		if i.warn.Allow() {
			i.logger.Warn("ingest shard full, dropping features",
				slog.String("chain", string(f.Chain)),
				slog.String("instrument", f.Instrument),
				slog.Uint64("dropped_total", n),
			)
		}
		return false
	}
}

// Run starts the shard workers and every source, and blocks until ctx ends.
// A source that fails is logged and does not stop the others.
func (i *Ingestor) Run(ctx context.Context, sources ...domain.FeatureSource) error {
	g, ctx := errgroup.WithContext(ctx)

	for idx := range i.shards {
		ch := i.shards[idx]
		g.Go(func() error {
			i.work(ctx, ch)
			return nil
		})
	}

	for _, src := range sources {
		g.Go(func() error {
			i.logger.Info("feature source started", slog.String("source", src.Name()))
			err := src.Run(ctx, func(f domain.Feature) {
				if f.Source == "" {
					f.Source = src.Name()
				}
				i.Submit(f)
			})
			if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
				i.logger.Error("feature source stopped",
					slog.String("source", src.Name()),
					slog.String("error", err.Error()),
				)
				return nil
			}
			i.logger.Info("feature source finished", slog.String("source", src.Name()))
			return nil
		})
	}

	return g.Wait()
}

func (i *Ingestor) work(ctx context.Context, ch <-chan domain.Feature) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-ch:
			i.apply(f)
		}
	}
}

func (i *Ingestor) apply(f domain.Feature) {
	_, err := i.store.Update(f)
	switch {
	case err == nil:
		i.applied.Add(1)
	case errors.Is(err, domain.ErrReorg):
		i.reorgs.Add(1)
	default:
		i.rejected.Add(1)
		i.logger.Debug("feature rejected",
			slog.String("chain", string(f.Chain)),
			slog.String("instrument", f.Instrument),
			slog.String("error", err.Error()),
		)
	}
}

// Drain applies every feature already queued and returns how many were
// applied. It is used by replay mode and tests to reach a quiescent state
// without running the workers.
func (i *Ingestor) Drain() int {
	n := 0
	for _, ch := range i.shards {
		for len(ch) > 0 {
			i.apply(<-ch)
			n++
		}
	}
	return n
}

// Pending returns the number of queued features across shards.
func (i *Ingestor) Pending() int {
	n := 0
	for _, ch := range i.shards {
		n += len(ch)
	}
	return n
}

// Stats returns cumulative counters.
func (i *Ingestor) Stats() Stats {
	return Stats{
		Submitted: i.submitted.Load(),
		Applied:   i.applied.Load(),
		Dropped:   i.dropped.Load(),
		Rejected:  i.rejected.Load(),
		Reorgs:    i.reorgs.Load(),
	}
}
