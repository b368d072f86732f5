package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Registry holds named strategies and which of them are enabled.
type Registry struct {
	strategies map[string]Strategy
	enabled    map[string]bool
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewRegistry returns an empty registry. Call Register to add strategies.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		enabled:    make(map[string]bool),
		logger:     logger.With(slog.String("component", "strategy_registry")),
	}
}

// Register adds an enabled strategy under the given name.
func (r *Registry) Register(name string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = s
	r.enabled[name] = true
}

// SetEnabled toggles a registered strategy.
func (r *Registry) SetEnabled(name string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[name]; !ok {
		return fmt.Errorf("arbitrage: strategy %q: %w", name, domain.ErrUnknownStrategy)
	}
	r.enabled[name] = on
	return nil
}

// Get returns the strategy by name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("arbitrage: strategy %q: %w", name, domain.ErrUnknownStrategy)
	}
	return s, nil
}

// List returns all registered strategy names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

// Enabled returns the enabled strategies sorted by name.
func (r *Registry) Enabled() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.strategies))
	for _, n := range r.listLocked() {
		if r.enabled[n] {
			out = append(out, r.strategies[n])
		}
	}
	return out
}

func (r *Registry) listLocked() []string {
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunPass runs every enabled strategy concurrently against snap and merges
// their candidates. A strategy that errors or panics is logged and contributes
// nothing; the others are unaffected.
func (r *Registry) RunPass(ctx context.Context, snap *domain.Snapshot) []domain.Candidate {
	strategies := r.Enabled()
	results := make([][]domain.Candidate, len(strategies))

	var g errgroup.Group
	for i, s := range strategies {
		g.Go(func() error {
			results[i] = r.detect(ctx, s, snap)
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.Candidate
	for _, cs := range results {
		out = append(out, cs...)
	}
	return out
}

func (r *Registry) detect(ctx context.Context, s Strategy, snap *domain.Snapshot) (cands []domain.Candidate) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("strategy panicked",
				slog.String("strategy", s.Name()),
				slog.Uint64("snapshot_version", snap.Version),
				slog.String("error", fmt.Sprint(rec)),
			)
			cands = nil
		}
	}()

	cands, err := s.Detect(ctx, snap)
	if err != nil {
		r.logger.Warn("strategy detect failed",
			slog.String("strategy", s.Name()),
			slog.Uint64("snapshot_version", snap.Version),
			slog.String("error", err.Error()),
		)
		return nil
	}
	for i := range cands {
		if cands[i].Snapshot == nil {
			cands[i].Snapshot = snap
			cands[i].SnapshotVersion = snap.Version
		}
		if cands[i].Strategy == "" {
			cands[i].Strategy = s.Name()
		}
	}
	return cands
}
