package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// StreamConfig controls a stream consumer.
type StreamConfig struct {
	// StartID is the cursor for every stream on start; "$" reads only
	// entries added after the consumer starts and "0" replays the retained
	// history.
	StartID string
	Count   int64
	Block   time.Duration
	// Backoff is the pause after a failed read.
	Backoff time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.StartID == "" {
		c.StartID = "$"
	}
	if c.Count <= 0 {
		c.Count = 256
	}
	if c.Block <= 0 {
		c.Block = time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	return c
}

// consume reads the given streams until ctx ends, advancing each cursor past
// every delivered message.
func consume(ctx context.Context, bus domain.SignalBus, streams []string, cfg StreamConfig, logger *slog.Logger, handle func(stream string, msg domain.StreamMessage)) error {
	cursors, err := startCursors(ctx, bus, streams, cfg, logger)
	if err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := bus.StreamRead(ctx, cursors, cfg.Count, cfg.Block)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			logger.Warn("stream read failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Backoff):
			}
			continue
		}
		for stream, msgs := range batch {
			for _, m := range msgs {
				handle(stream, m)
				cursors[stream] = m.ID
			}
		}
	}
}

// startCursors pins every stream's starting id. "$" is resolved once to the
// newest existing entry; XREAD would otherwise re-resolve it on each call and
// skip entries added between reads.
func startCursors(ctx context.Context, bus domain.SignalBus, streams []string, cfg StreamConfig, logger *slog.Logger) (map[string]string, error) {
	cursors := make(map[string]string, len(streams))
	for _, s := range streams {
		if cfg.StartID != "$" {
			cursors[s] = cfg.StartID
			continue
		}
		for {
			id, err := bus.StreamLastID(ctx, s)
			if err == nil {
				cursors[s] = id
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("stream cursor lookup failed",
				slog.String("stream", s),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.Backoff):
			}
		}
	}
	return cursors, nil
}

// FeatureStream is a domain.FeatureSource reading one stream per feature
// kind, named "<prefix>:<kind>", with JSON Feature payloads.
type FeatureStream struct {
	bus     domain.SignalBus
	prefix  string
	cfg     StreamConfig
	logger  *slog.Logger
	streams []string
}

// NewFeatureStream creates a feature source over every feature kind.
func NewFeatureStream(bus domain.SignalBus, prefix string, cfg StreamConfig, logger *slog.Logger) *FeatureStream {
	streams := make([]string, 0, len(domain.FeatureKinds))
	for _, k := range domain.FeatureKinds {
		streams = append(streams, FeatureStreamName(prefix, k))
	}
	return &FeatureStream{
		bus:     bus,
		prefix:  prefix,
		cfg:     cfg.withDefaults(),
		logger:  logger.With(slog.String("component", "feature_stream")),
		streams: streams,
	}
}

// FeatureStreamName returns the stream carrying one feature kind.
func FeatureStreamName(prefix string, kind domain.FeatureKind) string {
	return prefix + ":" + string(kind)
}

// Name identifies the source in ingestion logs.
func (s *FeatureStream) Name() string { return "redis:" + s.prefix }

// Run delivers decoded features to emit until ctx ends. Undecodable
// payloads are logged and skipped. A payload without a kind takes the kind
// of its stream.
func (s *FeatureStream) Run(ctx context.Context, emit func(domain.Feature)) error {
	s.logger.Info("feature stream started", slog.Any("streams", s.streams))
	kinds := make(map[string]domain.FeatureKind, len(s.streams))
	for _, k := range domain.FeatureKinds {
		kinds[FeatureStreamName(s.prefix, k)] = k
	}
	return consume(ctx, s.bus, s.streams, s.cfg, s.logger, func(stream string, m domain.StreamMessage) {
		f, err := DecodeFeature(m.Payload)
		if err != nil {
			s.logger.Warn("dropping malformed feature",
				slog.String("stream", stream),
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		if f.Kind == "" {
			f.Kind = kinds[stream]
		}
		if f.Source == "" {
			f.Source = stream
		}
		emit(f)
	})
}

// DecodeFeature parses a JSON feature payload.
func DecodeFeature(payload []byte) (domain.Feature, error) {
	var f domain.Feature
	if err := json.Unmarshal(payload, &f); err != nil {
		return domain.Feature{}, fmt.Errorf("redis: decode feature: %w", err)
	}
	return f, nil
}

// ReceiptStream is a domain.ReceiptSource over a stream of JSON receipts.
type ReceiptStream struct {
	bus    domain.SignalBus
	stream string
	cfg    StreamConfig
	logger *slog.Logger
}

// NewReceiptStream creates a receipt source.
func NewReceiptStream(bus domain.SignalBus, stream string, cfg StreamConfig, logger *slog.Logger) *ReceiptStream {
	return &ReceiptStream{
		bus:    bus,
		stream: stream,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "receipt_stream")),
	}
}

// Run delivers decoded receipts to emit until ctx ends.
func (r *ReceiptStream) Run(ctx context.Context, emit func(domain.ExecutionReceipt)) error {
	r.logger.Info("receipt stream started", slog.String("stream", r.stream))
	return consume(ctx, r.bus, []string{r.stream}, r.cfg, r.logger, func(_ string, m domain.StreamMessage) {
		rec, err := DecodeReceipt(m.Payload)
		if err != nil {
			r.logger.Warn("dropping malformed receipt",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		emit(rec)
	})
}

// DecodeReceipt parses a JSON receipt and requires a correlation id.
func DecodeReceipt(payload []byte) (domain.ExecutionReceipt, error) {
	var r domain.ExecutionReceipt
	if err := json.Unmarshal(payload, &r); err != nil {
		return domain.ExecutionReceipt{}, fmt.Errorf("redis: decode receipt: %w", err)
	}
	if r.CorrelationID == "" {
		return domain.ExecutionReceipt{}, errors.New("redis: decode receipt: missing correlation_id")
	}
	return r, nil
}
