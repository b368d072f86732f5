package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const maxReplayLine = 1 << 20

// ReplaySource emits features read from newline-delimited JSON, one Feature
// per line. Malformed lines are logged and skipped.
type ReplaySource struct {
	name   string
	open   func() (io.ReadCloser, error)
	logger *slog.Logger
}

// NewFileSource replays the NDJSON file at path.
func NewFileSource(path string, logger *slog.Logger) *ReplaySource {
	return &ReplaySource{
		name:   "replay:" + path,
		open:   func() (io.ReadCloser, error) { return os.Open(path) },
		logger: logger.With(slog.String("component", "replay_source")),
	}
}

// NewReaderSource replays r once.
func NewReaderSource(name string, r io.Reader, logger *slog.Logger) *ReplaySource {
	return &ReplaySource{
		name:   name,
		open:   func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
		logger: logger.With(slog.String("component", "replay_source")),
	}
}

// Name returns the source identifier.
func (s *ReplaySource) Name() string { return s.name }

// Run emits every feature in order and returns at end of input.
func (s *ReplaySource) Run(ctx context.Context, emit func(domain.Feature)) error {
	rc, err := s.open()
	if err != nil {
		return fmt.Errorf("ingest: open %s: %w", s.name, err)
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), maxReplayLine)
	line, emitted := 0, 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var f domain.Feature
		if err := json.Unmarshal(raw, &f); err != nil {
			s.logger.Warn("skipping malformed feature",
				slog.String("source", s.name),
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
			continue
		}
		emit(f)
		emitted++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("ingest: read %s: %w", s.name, err)
	}
	s.logger.Info("replay finished", slog.String("source", s.name), slog.Int("features", emitted))
	return nil
}
