package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/cache/redis"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/crypto"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/feed"
	"github.com/alanyoungcy/arbengine/internal/ingest"
	"github.com/alanyoungcy/arbengine/internal/notify"
	"github.com/alanyoungcy/arbengine/internal/server"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
)

// LiveMode consumes features from Redis streams (and the WebSocket feed when
// configured), publishes intents to Redis and reconciles receipts until ctx
// ends.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies, strategies map[string]domain.StrategyConfig) error {
	a.logger.InfoContext(ctx, "starting live mode")
	if deps.SignalBus == nil {
		return errors.New("app: live mode requires redis")
	}

	streamCfg := redis.StreamConfig{
		Count: int64(a.cfg.Redis.ReadCount),
		Block: a.cfg.Redis.ReadBlock.Duration,
	}
	sources := []domain.FeatureSource{
		redis.NewFeatureStream(deps.SignalBus, a.cfg.Redis.FeatureStreamPrefix, streamCfg, a.logger),
	}
	if a.cfg.Feed.WebSocketURL != "" {
		sources = append(sources, feed.NewWSSource(feed.WSConfig{
			URL:          a.cfg.Feed.WebSocketURL,
			ReconnectMin: a.cfg.Feed.ReconnectMin.Duration,
			ReconnectMax: a.cfg.Feed.ReconnectMax.Duration,
			PingInterval: a.cfg.Feed.PingInterval.Duration,
		}, a.logger))
	}

	eng, err := BuildEngine(a.cfg, strategies, deps, EngineIO{
		Sources:  sources,
		Receipts: redis.NewReceiptStream(deps.SignalBus, a.cfg.Redis.ReceiptStream, streamCfg, a.logger),
		Sink: redis.NewIntentSink(deps.SignalBus, a.cfg.Redis.IntentStream, a.cfg.Redis.IntentChannel, a.logger).
			WithSigner(&crypto.HMACAuth{KeyID: a.cfg.Intent.SigningKeyID, Secret: a.cfg.Intent.SigningSecret}),
	}, a.logger)
	if err != nil {
		return err
	}

	if eng.Checkpointer != nil {
		if _, err := eng.Checkpointer.Restore(ctx); err != nil {
			a.logger.WarnContext(ctx, "calibration restore failed, starting unbiased",
				slog.String("error", err.Error()),
			)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Orchestrator.Run(gctx)
	})
	if eng.Alerts != nil {
		g.Go(func() error {
			return eng.Alerts.Run(gctx)
		})
	}
	if a.cfg.Server.Enabled {
		srv := a.newServer(eng, deps)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.notifyFailure(ctx, deps.Notifier, err)
	}
	return err
}

// notifyFailure reports a pipeline failure on a context that outlives the
// cancelled run.
func (a *App) notifyFailure(ctx context.Context, n *notify.Notifier, cause error) {
	if n == nil || !n.Enabled() {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := n.Notify(nctx, notify.EventPipelineError, "pipeline", "arbengine pipeline stopped", cause.Error()); err != nil {
		a.logger.Warn("failed to send pipeline alert", slog.String("error", err.Error()))
	}
}

func (a *App) newServer(eng *Engine, deps *Dependencies) *server.Server {
	return server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		Limiter:     deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(eng.State, eng.Chains),
		Status:  handler.NewStatusHandler(a.cfg.Mode, eng.Status, eng.Calibration.Load),
		Intents: handler.NewIntentHandler(deps.IntentStore, deps.AuditStore, a.logger),
	}, a.logger)
}

// ReplaySummary reports what one replay produced.
type ReplaySummary struct {
	Features int
	Steps    int
	Intents  []domain.TradeIntent
}

// ReplayMode feeds the NDJSON feature log at ReplayPath through the pipeline
// on a clock driven by feature timestamps, so a given log always yields the
// same intents.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies, strategies map[string]domain.StrategyConfig) error {
	a.logger.InfoContext(ctx, "starting replay mode", slog.String("path", a.cfg.ReplayPath))
	if a.cfg.ReplayPath == "" {
		return errors.New("app: replay mode requires replay_path")
	}
	sum, err := Replay(ctx, a.cfg, strategies, deps, ingest.NewFileSource(a.cfg.ReplayPath, a.logger), a.logger)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "replay finished",
		slog.Int("features", sum.Features),
		slog.Int("steps", sum.Steps),
		slog.Int("intents", len(sum.Intents)),
	)
	return nil
}

// Replay runs src to completion. A pipeline step runs every time replay time
// crosses a detector interval, before the crossing feature is applied, and
// once more at the end of input. Intents go to the log sink.
func Replay(ctx context.Context, cfg *config.Config, strategies map[string]domain.StrategyConfig, deps *Dependencies, src domain.FeatureSource, logger *slog.Logger) (ReplaySummary, error) {
	clock := &replayClock{}
	eng, err := BuildEngine(cfg, strategies, deps, EngineIO{Clock: clock.Now}, logger)
	if err != nil {
		return ReplaySummary{}, err
	}

	interval := cfg.Detector.Interval.Duration
	if interval <= 0 {
		interval = time.Second
	}

	var (
		sum    ReplaySummary
		nextAt time.Time
	)
	step := func() {
		sum.Intents = append(sum.Intents, eng.Orchestrator.Step(ctx)...)
		sum.Steps++
	}

	err = src.Run(ctx, func(f domain.Feature) {
		sum.Features++
		if f.Source == "" {
			f.Source = src.Name()
		}
		if ts := f.Timestamp; !ts.IsZero() {
			switch {
			case nextAt.IsZero():
				nextAt = ts.Add(interval)
			case !ts.Before(nextAt):
				step()
				nextAt = ts.Add(interval)
			}
			clock.Advance(ts)
		}
		// Applied inline so ingestion order is exactly file order.
		eng.Ingestor.Submit(f)
		eng.Ingestor.Drain()
	})
	if err != nil {
		return sum, fmt.Errorf("app: replay %s: %w", src.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	step()
	return sum, nil
}

// replayClock reports the latest feature timestamp seen so far.
type replayClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward; it never goes back.
func (c *replayClock) Advance(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t.UTC()
	}
}
