package domain

import (
	"context"
	"time"
)

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, fields map[string]any) error
	StreamRead(ctx context.Context, streams map[string]string, count int64, block time.Duration) (map[string][]StreamMessage, error)
	// StreamLastID returns the id of the newest entry, or "0-0" for an empty
	// or missing stream.
	StreamLastID(ctx context.Context, stream string) (string, error)
}

// FeatureSource delivers features from the ingestion boundary until ctx ends.
type FeatureSource interface {
	Name() string
	Run(ctx context.Context, emit func(Feature)) error
}

// ReceiptSource delivers execution receipts until ctx ends.
type ReceiptSource interface {
	Run(ctx context.Context, emit func(ExecutionReceipt)) error
}

// IntentSink hands intents to the execution boundary.
type IntentSink interface {
	Emit(ctx context.Context, intent TradeIntent) error
}

// CalibrationCache keeps the latest calibration state for warm restarts.
type CalibrationCache interface {
	SaveCalibration(ctx context.Context, state *CalibrationState) error
	LoadCalibration(ctx context.Context) (*CalibrationState, error)
}

// RateLimiter throttles events shared across replicas.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
