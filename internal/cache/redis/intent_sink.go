package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/crypto"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/intent"
)

// IntentSink implements domain.IntentSink by appending every intent to a
// durable stream with a binary "bin" field and a diagnostic "json" field,
// then publishing the JSON form on a channel for live dashboards.
type IntentSink struct {
	bus     domain.SignalBus
	stream  string
	channel string
	signer  *crypto.HMACAuth
	logger  *slog.Logger
}

// NewIntentSink creates a sink. An empty channel skips the publish.
func NewIntentSink(bus domain.SignalBus, stream, channel string, logger *slog.Logger) *IntentSink {
	return &IntentSink{
		bus:     bus,
		stream:  stream,
		channel: channel,
		logger:  logger.With(slog.String("component", "intent_sink")),
	}
}

// WithSigner adds HMAC signature fields over the binary form to every stream
// entry. A signer without a secret is ignored.
func (s *IntentSink) WithSigner(signer *crypto.HMACAuth) *IntentSink {
	if signer.Enabled() {
		s.signer = signer
	}
	return s
}

// Emit appends the intent to the stream. A failed publish after a successful
// append is logged but not returned: the stream is the execution boundary.
func (s *IntentSink) Emit(ctx context.Context, ti domain.TradeIntent) error {
	bin, err := intent.Marshal(ti)
	if err != nil {
		return fmt.Errorf("redis: intent %s: %w", ti.CorrelationID, err)
	}
	text, err := intent.MarshalText(ti)
	if err != nil {
		return fmt.Errorf("redis: intent %s: %w", ti.CorrelationID, err)
	}

	fields := map[string]any{
		"correlation_id": ti.CorrelationID,
		"bin":            bin,
		"json":           text,
	}
	if s.signer != nil {
		for k, v := range s.signer.Fields(ti.CorrelationID, bin) {
			fields[k] = v
		}
	}
	if err := s.bus.StreamAppend(ctx, s.stream, fields); err != nil {
		return err
	}

	if s.channel != "" {
		if err := s.bus.Publish(ctx, s.channel, text); err != nil {
			s.logger.WarnContext(ctx, "intent publish failed",
				slog.String("correlation_id", ti.CorrelationID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

var _ domain.IntentSink = (*IntentSink)(nil)
