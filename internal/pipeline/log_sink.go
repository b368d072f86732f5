package pipeline

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// LogSink writes intents to the log instead of an execution boundary.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the intent's diagnostic form.
func (s *LogSink) Emit(ctx context.Context, ti domain.TradeIntent) error {
	s.logger.InfoContext(ctx, "trade intent",
		slog.String("correlation_id", ti.CorrelationID),
		slog.String("strategy", ti.Strategy),
		slog.Float64("size_usd", ti.SizeUSD),
		slog.Float64("expected_pnl_usd", ti.ExpectedPnLUSD),
		slog.String("intent", ti.String()),
	)
	return nil
}
