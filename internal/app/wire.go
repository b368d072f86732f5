package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/arbengine/internal/blob/s3"
	"github.com/alanyoungcy/arbengine/internal/cache/redis"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/notify"
	"github.com/alanyoungcy/arbengine/internal/store/postgres"
)

// Dependencies bundles the external dependencies the modes need. Every field
// may be nil: replay mode wires none of them and live mode wires Postgres and
// S3 only when enabled.
type Dependencies struct {
	// Stores
	IntentStore domain.IntentStore
	AuditStore  domain.AuditStore

	// Caches and messaging
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// CalibrationCaches receive periodic calibration checkpoints. The first
	// one holding a state seeds calibration on start.
	CalibrationCaches []domain.CalibrationCache

	// Blob storage
	Archiver domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsExternal reports whether a mode talks to Redis, Postgres or S3.
func needsExternal(mode string) bool {
	return mode == "live"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	if !needsExternal(cfg.Mode) {
		deps.Notifier = notify.NewNotifier(nil, nil, notify.Throttle{}, logger)
		return deps, cleanup, nil
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.IntentStore = postgres.NewIntentStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SignalBus = redis.NewSignalBus(redisClient, int64(cfg.Redis.StreamMaxLen))
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.CalibrationCaches = append(deps.CalibrationCaches,
		redis.NewCalibrationCache(redisClient, cfg.Redis.CalibrationKey))

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable, continuing",
				slog.String("bucket", cfg.S3.Bucket),
				slog.String("error", err.Error()),
			)
		}

		store := s3blob.NewStore(s3Client)
		deps.CalibrationCaches = append(deps.CalibrationCaches,
			s3blob.NewCheckpointStore(store, cfg.S3.CheckpointPrefix, 0))
		// Archiving reads reconciled intents back out of Postgres.
		if deps.IntentStore != nil {
			deps.Archiver = s3blob.NewArchiver(store, deps.IntentStore, deps.AuditStore, s3blob.ArchiveConfig{
				Prefix: cfg.S3.ArchivePrefix,
			})
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, notify.Throttle{
		Limiter: deps.RateLimiter,
		Limit:   cfg.Notify.ThrottleLimit,
		Window:  cfg.Notify.ThrottleWindow.Duration,
	}, logger)

	return deps, cleanup, nil
}
