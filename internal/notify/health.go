package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Transition is one sequencer status change.
type Transition struct {
	Chain    domain.Chain
	From, To domain.SequencerStatus
	At       time.Time
}

// HealthAlerts turns sequencer transitions into chain_health notifications.
// Hook never blocks the caller; transitions beyond the buffer are dropped
// and counted.
type HealthAlerts struct {
	notifier *Notifier
	queue    chan Transition
	clock    func() time.Time
	logger   *slog.Logger
	dropped  atomic.Int64
}

// NewHealthAlerts buffers up to capacity pending transitions.
func NewHealthAlerts(n *Notifier, capacity int, logger *slog.Logger) *HealthAlerts {
	if capacity <= 0 {
		capacity = 64
	}
	return &HealthAlerts{
		notifier: n,
		queue:    make(chan Transition, capacity),
		clock:    func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "health_alerts")),
	}
}

// Hook matches state.HealthTransitionFunc.
func (h *HealthAlerts) Hook(chain domain.Chain, from, to domain.SequencerStatus) {
	select {
	case h.queue <- Transition{Chain: chain, From: from, To: to, At: h.clock()}:
	default:
		h.dropped.Add(1)
	}
}

// Dropped returns how many transitions were discarded on a full buffer.
func (h *HealthAlerts) Dropped() int64 { return h.dropped.Load() }

// Run sends queued transitions until ctx ends.
func (h *HealthAlerts) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-h.queue:
			title, msg := FormatTransition(t)
			if err := h.notifier.Notify(ctx, EventChainHealth, string(t.Chain), title, msg); err != nil {
				h.logger.Warn("health alert failed",
					slog.String("chain", string(t.Chain)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// FormatTransition renders the alert title and body.
func FormatTransition(t Transition) (title, message string) {
	switch t.To {
	case domain.SequencerHealthy:
		title = fmt.Sprintf("%s sequencer recovered", t.Chain)
	case domain.SequencerDown:
		title = fmt.Sprintf("%s sequencer DOWN", t.Chain)
	default:
		title = fmt.Sprintf("%s sequencer %s", t.Chain, t.To)
	}
	message = fmt.Sprintf("status %s -> %s at %s", t.From, t.To, t.At.UTC().Format(time.RFC3339))
	if t.To != domain.SequencerHealthy {
		message += "\nintents touching this chain are suspended"
	}
	return title, message
}
