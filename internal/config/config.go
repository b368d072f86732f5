// Package config defines the top-level configuration for the arbitrage engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBENGINE_* environment variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Feed       FeedConfig       `toml:"feed"`
	State      StateConfig      `toml:"state"`
	Ingest     IngestConfig     `toml:"ingest"`
	Detector   DetectorConfig   `toml:"detector"`
	Simulation SimulationConfig `toml:"simulation"`
	Decision   DecisionConfig   `toml:"decision"`
	Intent     IntentConfig     `toml:"intent"`
	Feedback   FeedbackConfig   `toml:"feedback"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Notify     NotifyConfig     `toml:"notify"`
	Server     ServerConfig     `toml:"server"`

	// StrategiesPath points at the YAML strategy documents.
	StrategiesPath string `toml:"strategies_path"`
	// ReplayPath is the NDJSON feature log read in replay mode.
	ReplayPath string `toml:"replay_path"`
	Mode       string `toml:"mode"`
	LogLevel   string `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters and stream names.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`

	StreamMaxLen        int      `toml:"stream_max_len"`
	FeatureStreamPrefix string   `toml:"feature_stream_prefix"`
	IntentStream        string   `toml:"intent_stream"`
	IntentChannel       string   `toml:"intent_channel"`
	ReceiptStream       string   `toml:"receipt_stream"`
	CalibrationKey      string   `toml:"calibration_key"`
	ReadCount           int      `toml:"read_count"`
	ReadBlock           duration `toml:"read_block"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled          bool   `toml:"enabled"`
	Endpoint         string `toml:"endpoint"`
	Region           string `toml:"region"`
	Bucket           string `toml:"bucket"`
	AccessKey        string `toml:"access_key"`
	SecretKey        string `toml:"secret_key"`
	UseSSL           bool   `toml:"use_ssl"`
	ForcePathStyle   bool   `toml:"force_path_style"`
	CheckpointPrefix string `toml:"checkpoint_prefix"`
	ArchivePrefix    string `toml:"archive_prefix"`
}

// FeedConfig configures the optional WebSocket feature feed.
type FeedConfig struct {
	WebSocketURL string   `toml:"websocket_url"`
	ReconnectMin duration `toml:"reconnect_min"`
	ReconnectMax duration `toml:"reconnect_max"`
	PingInterval duration `toml:"ping_interval"`
}

// StateConfig bounds the market state store.
type StateConfig struct {
	MaxAge   duration `toml:"max_age"`
	Capacity int      `toml:"capacity"`
}

// IngestConfig sizes the ingestion shards.
type IngestConfig struct {
	Shards      int `toml:"shards"`
	ShardBuffer int `toml:"shard_buffer"`
}

// DetectorConfig controls the detection loop.
type DetectorConfig struct {
	Interval             duration           `toml:"interval"`
	QueueCapacity        int                `toml:"queue_capacity"`
	MaxCandidatesPerPass int                `toml:"max_candidates_per_pass"`
	MaxTriangles         int                `toml:"max_triangles"`
	Confidence           map[string]float64 `toml:"confidence"`
}

// SimulationConfig tunes the cost models and the size search.
type SimulationConfig struct {
	Workers            int      `toml:"workers"`
	DefaultNotionalUSD float64  `toml:"default_notional_usd"`
	MinSizeUSD         float64  `toml:"min_size_usd"`
	MaxSizeUSD         float64  `toml:"max_size_usd"`
	RefineSteps        int      `toml:"refine_steps"`
	MaxSnapshotAge     duration `toml:"max_snapshot_age"`
	Timeout            duration `toml:"timeout"`
	CapitalCostAPR     float64  `toml:"capital_cost_apr"`
	NativeAsset        string   `toml:"native_asset"`
}

// DecisionConfig holds the portfolio-level risk policy.
type DecisionConfig struct {
	Interval            duration           `toml:"interval"`
	TopN                int                `toml:"top_n"`
	AssetCapsUSD        map[string]float64 `toml:"asset_caps_usd"`
	DefaultAssetCapUSD  float64            `toml:"default_asset_cap_usd"`
	ExposureWeight      float64            `toml:"exposure_weight"`
	ExposureNormUSD     float64            `toml:"exposure_norm_usd"`
	ConcentrationWeight float64            `toml:"concentration_weight"`
	HealthExemptChains  []string           `toml:"health_exempt_chains"`
}

// IntentConfig controls intent lifetimes and identifiers.
type IntentConfig struct {
	TTL               duration `toml:"ttl"`
	DegradedTTLFactor float64  `toml:"degraded_ttl_factor"`
	// IDSeed makes correlation ids deterministic when set.
	IDSeed string `toml:"id_seed"`
	// SigningKeyID and SigningSecret sign stream entries with HMAC-SHA256
	// when the secret is set.
	SigningKeyID  string `toml:"signing_key_id"`
	SigningSecret string `toml:"signing_secret"`
}

// FeedbackConfig controls reconciliation and calibration.
type FeedbackConfig struct {
	Capacity           int      `toml:"capacity"`
	Retention          duration `toml:"retention"`
	SweepInterval      duration `toml:"sweep_interval"`
	DefaultSuccessRate float64  `toml:"default_success_rate"`
	Alpha              float64  `toml:"alpha"`
	MaxStep            float64  `toml:"max_step"`
	MinCoefficient     float64  `toml:"min_coefficient"`
	MaxCoefficient     float64  `toml:"max_coefficient"`
}

// PipelineConfig holds stage wiring and maintenance schedules.
type PipelineConfig struct {
	ResultBuffer       int      `toml:"result_buffer"`
	CheckpointInterval duration `toml:"checkpoint_interval"`
	ArchiveCron        string   `toml:"archive_cron"`
	ArchiveLookback    duration `toml:"archive_lookback"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// ThrottleLimit alerts per ThrottleWindow per event and chain; zero
	// disables throttling.
	ThrottleLimit  int      `toml:"throttle_limit"`
	ThrottleWindow duration `toml:"throttle_window"`
}

// ServerConfig holds the read-only ops API settings.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"` // if empty, authentication is disabled
	// RateLimit requests per RateWindow per client; zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// Defaults returns a Config populated with sensible defaults.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbengine",
			User:          "arbengine",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:                "localhost:6379",
			PoolSize:            20,
			MaxRetries:          3,
			StreamMaxLen:        10_000,
			FeatureStreamPrefix: "features",
			IntentStream:        "intents",
			IntentChannel:       "intents:live",
			ReceiptStream:       "receipts",
			CalibrationKey:      "calibration:latest",
			ReadCount:           256,
			ReadBlock:           duration{time.Second},
		},
		S3: S3Config{
			Region:           "us-east-1",
			Bucket:           "arbengine",
			UseSSL:           true,
			ForcePathStyle:   true,
			CheckpointPrefix: "calibration/",
			ArchivePrefix:    "archive/intents/",
		},
		Feed: FeedConfig{
			ReconnectMin: duration{500 * time.Millisecond},
			ReconnectMax: duration{30 * time.Second},
			PingInterval: duration{15 * time.Second},
		},
		State: StateConfig{
			MaxAge:   duration{30 * time.Second},
			Capacity: 50_000,
		},
		Ingest: IngestConfig{
			Shards:      8,
			ShardBuffer: 1024,
		},
		Detector: DetectorConfig{
			Interval:             duration{time.Second},
			QueueCapacity:        4096,
			MaxCandidatesPerPass: 512,
			MaxTriangles:         32,
		},
		Simulation: SimulationConfig{
			Workers:            4,
			DefaultNotionalUSD: 100_000,
			MinSizeUSD:         1_000,
			MaxSizeUSD:         50_000_000,
			RefineSteps:        12,
			MaxSnapshotAge:     duration{30 * time.Second},
			Timeout:            duration{250 * time.Millisecond},
			CapitalCostAPR:     0.10,
			NativeAsset:        "WETH",
		},
		Decision: DecisionConfig{
			Interval:            duration{250 * time.Millisecond},
			TopN:                10,
			AssetCapsUSD:        map[string]float64{},
			DefaultAssetCapUSD:  1_000_000,
			ExposureWeight:      0.5,
			ExposureNormUSD:     1_000_000,
			ConcentrationWeight: 0.5,
		},
		Intent: IntentConfig{
			TTL:               duration{12 * time.Second},
			DegradedTTLFactor: 0.5,
		},
		Feedback: FeedbackConfig{
			Capacity:           10_000,
			Retention:          duration{time.Hour},
			SweepInterval:      duration{time.Minute},
			DefaultSuccessRate: 0.9,
			Alpha:              0.1,
			MaxStep:            0.05,
			MinCoefficient:     0.25,
			MaxCoefficient:     4,
		},
		Pipeline: PipelineConfig{
			ResultBuffer:       256,
			CheckpointInterval: duration{time.Minute},
			ArchiveCron:        "0 3 * * *",
			ArchiveLookback:    duration{24 * time.Hour},
		},
		Notify: NotifyConfig{
			Events:         []string{"chain_health", "pipeline_error"},
			ThrottleLimit:  3,
			ThrottleWindow: duration{10 * time.Minute},
		},
		Server: ServerConfig{
			Port:       8080,
			RateLimit:  120,
			RateWindow: duration{time.Minute},
		},
		StrategiesPath: "strategies.yaml",
		Mode:           "live",
		LogLevel:       "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":   true,
	"replay": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, replay)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.StrategiesPath == "" {
		errs = append(errs, "strategies_path must not be empty")
	}
	if mode == "replay" && c.ReplayPath == "" {
		errs = append(errs, "replay_path is required for mode replay")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be within [0, pool_max_conns]")
		}
	}

	// Redis is the live transport.
	if mode == "live" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.IntentStream == "" || c.Redis.ReceiptStream == "" || c.Redis.FeatureStreamPrefix == "" {
			errs = append(errs, "redis: feature_stream_prefix, intent_stream and receipt_stream must be set")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Pipeline
	if c.Simulation.Workers < 1 {
		errs = append(errs, "simulation: workers must be >= 1")
	}
	if c.Simulation.MinSizeUSD <= 0 || c.Simulation.MaxSizeUSD < c.Simulation.MinSizeUSD {
		errs = append(errs, "simulation: need 0 < min_size_usd <= max_size_usd")
	}
	if c.Detector.QueueCapacity < 1 {
		errs = append(errs, "detector: queue_capacity must be >= 1")
	}
	if c.Intent.TTL.Duration <= 0 {
		errs = append(errs, "intent: ttl must be > 0")
	}
	if f := c.Intent.DegradedTTLFactor; f <= 0 || f > 1 {
		errs = append(errs, fmt.Sprintf("intent: degraded_ttl_factor must be in (0, 1], got %g", f))
	}
	if r := c.Feedback.DefaultSuccessRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Sprintf("feedback: default_success_rate must be in [0, 1], got %g", r))
	}
	if c.Feedback.MinCoefficient <= 0 || c.Feedback.MaxCoefficient < c.Feedback.MinCoefficient {
		errs = append(errs, "feedback: need 0 < min_coefficient <= max_coefficient")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}
	if c.Notify.ThrottleLimit < 0 {
		errs = append(errs, "notify: throttle_limit must be >= 0")
	}
	if c.Decision.ExposureNormUSD <= 0 {
		errs = append(errs, "decision: exposure_norm_usd must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
