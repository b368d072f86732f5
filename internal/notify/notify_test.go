package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/notify"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordingSender struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

// countLimiter allows the first limit calls per key.
type countLimiter struct {
	seen map[string]int
	err  error
}

func (c *countLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	c.seen[key]++
	return c.seen[key] <= limit, nil
}

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &recordingSender{}
	n := notify.NewNotifier([]notify.Sender{s}, []string{notify.EventChainHealth}, notify.Throttle{}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), notify.EventPipelineError, "", "ignored", ""))
	require.NoError(t, n.Notify(context.Background(), notify.EventChainHealth, "base", "kept", ""))
	assert.Equal(t, []string{"kept"}, s.sent())
}

func TestNotifier_Throttles(t *testing.T) {
	s := &recordingSender{}
	lim := &countLimiter{seen: map[string]int{}}
	n := notify.NewNotifier([]notify.Sender{s}, nil,
		notify.Throttle{Limiter: lim, Limit: 1, Window: time.Minute}, discardLogger())

	ctx := context.Background()
	require.NoError(t, n.Notify(ctx, notify.EventChainHealth, "base", "1", ""))
	require.NoError(t, n.Notify(ctx, notify.EventChainHealth, "base", "2", ""))
	require.NoError(t, n.Notify(ctx, notify.EventChainHealth, "arbitrum", "3", ""))
	assert.Equal(t, []string{"1", "3"}, s.sent())
	assert.Equal(t, 2, lim.seen["notify:chain_health:base"])
}

func TestNotifier_ThrottleFailsOpen(t *testing.T) {
	s := &recordingSender{}
	lim := &countLimiter{err: errors.New("redis down")}
	n := notify.NewNotifier([]notify.Sender{s}, nil,
		notify.Throttle{Limiter: lim, Limit: 1, Window: time.Minute}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), notify.EventChainHealth, "base", "sent", ""))
	assert.Equal(t, []string{"sent"}, s.sent())
}

func TestNotifier_SenderFailureDoesNotStopOthers(t *testing.T) {
	bad := &recordingSender{err: errors.New("boom")}
	good := &recordingSender{}
	n := notify.NewNotifier([]notify.Sender{bad, good}, nil, notify.Throttle{}, discardLogger())

	err := n.Notify(context.Background(), notify.EventPipelineError, "", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Equal(t, []string{"t"}, good.sent())
}

func TestFormatTransition(t *testing.T) {
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	title, msg := notify.FormatTransition(notify.Transition{
		Chain: "base", From: domain.SequencerHealthy, To: domain.SequencerDown, At: at,
	})
	assert.Equal(t, "base sequencer DOWN", title)
	assert.Contains(t, msg, "healthy -> down at 2026-03-02T12:00:00Z")
	assert.Contains(t, msg, "suspended")

	title, msg = notify.FormatTransition(notify.Transition{
		Chain: "base", From: domain.SequencerDown, To: domain.SequencerHealthy, At: at,
	})
	assert.Equal(t, "base sequencer recovered", title)
	assert.NotContains(t, msg, "suspended")
}

func TestHealthAlerts_DeliversAndDrops(t *testing.T) {
	s := &recordingSender{}
	n := notify.NewNotifier([]notify.Sender{s}, nil, notify.Throttle{}, discardLogger())
	h := notify.NewHealthAlerts(n, 1, discardLogger())

	h.Hook("base", domain.SequencerHealthy, domain.SequencerDegraded)
	h.Hook("base", domain.SequencerDegraded, domain.SequencerDown)
	assert.Equal(t, int64(1), h.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool { return len(s.sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{"base sequencer degraded"}, s.sent())
}

func TestSenders_PostJSON(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]string{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies[r.URL.Path] = body
		mu.Unlock()
		if r.URL.Path == "/fail" {
			http.Error(w, "nope", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	ctx := context.Background()
	tg := notify.NewTelegramSender("TOKEN", "42").WithBaseURL(ts.URL + "/")
	require.NoError(t, tg.Send(ctx, "title", "body"))

	dc := notify.NewDiscordSender(ts.URL + "/hook")
	require.NoError(t, dc.Send(ctx, "title", "body"))

	err := notify.NewDiscordSender(ts.URL+"/fail").Send(ctx, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400: nope")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{"chat_id": "42", "text": "title\nbody"}, bodies["/botTOKEN/sendMessage"])
	assert.Equal(t, "**title**\nbody", bodies["/hook"]["content"])
}
