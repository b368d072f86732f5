// Package notify alerts operators through chat webhooks. Events are filtered
// by type and optionally throttled by a shared rate limiter.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Event types operators can subscribe to.
const (
	EventChainHealth   = "chain_health"
	EventPipelineError = "pipeline_error"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Throttle bounds how often one key may notify.
type Throttle struct {
	Limiter domain.RateLimiter
	Limit   int
	Window  time.Duration
}

// Notifier dispatches to every sender. Notify only forwards configured event
// types; an empty list allows every event.
type Notifier struct {
	senders  []Sender
	events   map[string]bool
	throttle Throttle
	logger   *slog.Logger
}

// NewNotifier creates a notifier. A zero Throttle disables throttling.
func NewNotifier(senders []Sender, events []string, throttle Throttle, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		throttle: throttle,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether the notifier has anywhere to send.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify sends an event. key scopes throttling, e.g. the chain of a health
// transition. Filtered and throttled events return nil.
func (n *Notifier) Notify(ctx context.Context, event, key, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if !n.allow(ctx, event+":"+key) {
		n.logger.DebugContext(ctx, "event throttled",
			slog.String("event", event),
			slog.String("key", key),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// allow fails open when the limiter errors.
func (n *Notifier) allow(ctx context.Context, key string) bool {
	t := n.throttle
	if t.Limiter == nil || t.Limit <= 0 || t.Window <= 0 {
		return true
	}
	ok, err := t.Limiter.Allow(ctx, "notify:"+key, t.Limit, t.Window)
	if err != nil {
		n.logger.WarnContext(ctx, "notify throttle unavailable", slog.String("error", err.Error()))
		return true
	}
	return ok
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
