package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBENGINE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBENGINE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBENGINE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBENGINE_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.StreamMaxLen, "ARBENGINE_REDIS_STREAM_MAX_LEN")
	setStr(&cfg.Redis.IntentStream, "ARBENGINE_REDIS_INTENT_STREAM")
	setStr(&cfg.Redis.ReceiptStream, "ARBENGINE_REDIS_RECEIPT_STREAM")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBENGINE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBENGINE_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setStr(&cfg.Feed.WebSocketURL, "ARBENGINE_FEED_WEBSOCKET_URL")

	// ── Pipeline ──
	setInt(&cfg.Simulation.Workers, "ARBENGINE_SIMULATION_WORKERS")
	setDuration(&cfg.Detector.Interval, "ARBENGINE_DETECTOR_INTERVAL")
	setDuration(&cfg.Decision.Interval, "ARBENGINE_DECISION_INTERVAL")
	setInt(&cfg.Decision.TopN, "ARBENGINE_DECISION_TOP_N")
	setFloat64(&cfg.Decision.DefaultAssetCapUSD, "ARBENGINE_DECISION_DEFAULT_ASSET_CAP_USD")
	setStringSlice(&cfg.Decision.HealthExemptChains, "ARBENGINE_DECISION_HEALTH_EXEMPT_CHAINS")
	setDuration(&cfg.Intent.TTL, "ARBENGINE_INTENT_TTL")
	setStr(&cfg.Intent.IDSeed, "ARBENGINE_INTENT_ID_SEED")
	setStr(&cfg.Intent.SigningKeyID, "ARBENGINE_INTENT_SIGNING_KEY_ID")
	setStr(&cfg.Intent.SigningSecret, "ARBENGINE_INTENT_SIGNING_SECRET")
	setFloat64(&cfg.Feedback.DefaultSuccessRate, "ARBENGINE_FEEDBACK_DEFAULT_SUCCESS_RATE")
	setStr(&cfg.Pipeline.ArchiveCron, "ARBENGINE_PIPELINE_ARCHIVE_CRON")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBENGINE_NOTIFY_EVENTS")
	setInt(&cfg.Notify.ThrottleLimit, "ARBENGINE_NOTIFY_THROTTLE_LIMIT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBENGINE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ARBENGINE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBENGINE_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "ARBENGINE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ARBENGINE_SERVER_RATE_WINDOW")

	// ── Top-level ──
	setStr(&cfg.StrategiesPath, "ARBENGINE_STRATEGIES_PATH")
	setStr(&cfg.ReplayPath, "ARBENGINE_REPLAY_PATH")
	setStr(&cfg.Mode, "ARBENGINE_MODE")
	setStr(&cfg.LogLevel, "ARBENGINE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
