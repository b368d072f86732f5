// Package feed connects external market-data producers to the ingestion
// layer.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 15 * time.Second
)

// WSConfig configures a WebSocket feature source.
type WSConfig struct {
	URL    string
	Header http.Header
	// Kinds are requested in the subscribe command sent after each connect.
	// Empty subscribes to every kind.
	Kinds        []domain.FeatureKind
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// PingInterval must be shorter than the read deadline, which is twice
	// the interval.
	PingInterval time.Duration
}

func (c WSConfig) withDefaults() WSConfig {
	if len(c.Kinds) == 0 {
		c.Kinds = domain.FeatureKinds
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = 500 * time.Millisecond
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = max(30*time.Second, c.ReconnectMin)
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	return c
}

// subscribeCommand is sent once per connection.
type subscribeCommand struct {
	Type  string               `json:"type"`
	Kinds []domain.FeatureKind `json:"kinds"`
}

// WSSource is a domain.FeatureSource reading JSON features from a
// WebSocket. A frame holds either one feature object or an array of them. It
// reconnects with exponential backoff until its context ends.
type WSSource struct {
	cfg    WSConfig
	dialer *websocket.Dialer
	logger *slog.Logger

	mu        sync.Mutex
	connects  int
	malformed int
}

// NewWSSource creates a source for cfg.URL.
func NewWSSource(cfg WSConfig, logger *slog.Logger) *WSSource {
	return &WSSource{
		cfg:    cfg.withDefaults(),
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger: logger.With(slog.String("component", "ws_feed")),
	}
}

// Name identifies the source in ingestion logs.
func (s *WSSource) Name() string { return "ws:" + s.cfg.URL }

// Stats returns how many connections were established and how many frames
// could not be decoded.
func (s *WSSource) Stats() (connects, malformed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects, s.malformed
}

// Run delivers features to emit until ctx ends.
func (s *WSSource) Run(ctx context.Context, emit func(domain.Feature)) error {
	delay := s.cfg.ReconnectMin
	for {
		delivered, err := s.runConnection(ctx, emit)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			delay = s.cfg.ReconnectMin
		}
		s.logger.Warn("feature feed disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("backoff", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, s.cfg.ReconnectMax)
	}
}

// runConnection serves one connection and reports whether any feature was
// delivered on it.
func (s *WSSource) runConnection(ctx context.Context, emit func(domain.Feature)) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
	if err != nil {
		return false, fmt.Errorf("feed: dial %s: %w", s.cfg.URL, err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.connects++
	s.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeCommand{Type: "subscribe", Kinds: s.cfg.Kinds}); err != nil {
		return false, fmt.Errorf("feed: subscribe: %w", err)
	}

	readWait := 2 * s.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, conn, done)

	s.logger.Info("feature feed connected", slog.String("url", s.cfg.URL))
	delivered := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return delivered, ctx.Err()
			}
			return delivered, fmt.Errorf("feed: read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		features, err := DecodeFrame(data)
		if err != nil {
			s.mu.Lock()
			s.malformed++
			s.mu.Unlock()
			s.logger.Warn("dropping malformed frame", slog.String("error", err.Error()))
			continue
		}
		for _, f := range features {
			if f.Source == "" {
				f.Source = s.Name()
			}
			emit(f)
			delivered = true
		}
	}
}

// keepAlive pings on an interval and closes the connection when ctx ends so
// the blocked read returns.
func (s *WSSource) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug("ping failed", slog.String("error", err.Error()))
				_ = conn.Close()
				return
			}
		}
	}
}

// DecodeFrame parses a frame holding one feature or an array of features.
func DecodeFrame(data []byte) ([]domain.Feature, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("feed: empty frame")
	}
	if trimmed[0] == '[' {
		var fs []domain.Feature
		if err := json.Unmarshal(trimmed, &fs); err != nil {
			return nil, fmt.Errorf("feed: decode batch: %w", err)
		}
		return fs, nil
	}
	var f domain.Feature
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, fmt.Errorf("feed: decode feature: %w", err)
	}
	return []domain.Feature{f}, nil
}

func errString(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}

var _ domain.FeatureSource = (*WSSource)(nil)
