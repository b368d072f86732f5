// Package state maintains the rolling multi-chain market view built from
// ingested features.
package state

import (
	"container/list"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// HealthTransitionFunc is invoked outside the store lock whenever a chain's
// sequencer status changes.
type HealthTransitionFunc func(chain domain.Chain, from, to domain.SequencerStatus)

// Config controls staleness and memory bounds.
type Config struct {
	MaxAge             time.Duration
	Capacity           int
	Clock              func() time.Time
	OnHealthTransition HealthTransitionFunc
}

type entry struct {
	key         domain.StateKey
	state       domain.MarketState
	invalidated bool
	// floor is the lowest block accepted once the entry has been invalidated.
	floor uint64
}

// Store is a last-writer-wins cache keyed by (chain, instrument). Readers take
// the read lock only for map lookups and copies, so queries never wait on more
// than a single in-memory update.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[domain.StateKey]*list.Element
	lru     *list.List
	reorgs  map[domain.Chain]uint64
	health  map[domain.Chain]domain.SequencerStatus

	version   atomic.Uint64
	evictions atomic.Uint64
	reorgHits atomic.Uint64
}

// New creates an empty store.
func New(cfg Config, logger *slog.Logger) *Store {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * time.Second
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 50_000
	}
	return &Store{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "state_store")),
		entries: make(map[domain.StateKey]*list.Element),
		lru:     list.New(),
		reorgs:  make(map[domain.Chain]uint64),
		health:  make(map[domain.Chain]domain.SequencerStatus),
	}
}

// Version returns the latest published snapshot version.
func (s *Store) Version() uint64 { return s.version.Load() }

// Update applies a feature and returns the snapshot version it produced. A
// feature whose block number is below the stored one invalidates every entry
// of its chain instead of overwriting, and ErrReorg is returned.
func (s *Store) Update(f domain.Feature) (uint64, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return 0, fmt.Errorf("state: update: %w", err)
	}
	now := s.cfg.Clock()
	key := f.Key()

	s.mu.Lock()
	el, exists := s.entries[key]
	if exists {
		e := el.Value.(*entry)
		switch {
		case e.invalidated && f.BlockNumber < e.floor:
			s.mu.Unlock()
			return 0, fmt.Errorf("state: %s block %d below reorg floor %d: %w", key, f.BlockNumber, e.floor, domain.ErrReorg)
		case !e.invalidated && f.BlockNumber < e.state.Feature.BlockNumber:
			prev := e.state.Feature.BlockNumber
			v := s.invalidateChainLocked(f.Chain, f.BlockNumber)
			transition := s.recordHealthLocked(f.Chain)
			s.mu.Unlock()

			s.reorgHits.Add(1)
			s.logger.Warn("reorg detected, chain state invalidated",
				slog.String("chain", string(f.Chain)),
				slog.String("instrument", f.Instrument),
				slog.Uint64("stored_block", prev),
				slog.Uint64("incoming_block", f.BlockNumber),
				slog.Uint64("version", v),
			)
			s.fireTransition(f.Chain, transition)
			return v, fmt.Errorf("state: %s block %d < %d: %w", key, f.BlockNumber, prev, domain.ErrReorg)
		}
	}

	v := s.version.Add(1)
	st := domain.MarketState{Feature: f, Version: v, UpdatedAt: now}
	if exists {
		e := el.Value.(*entry)
		e.state = st
		e.invalidated = false
		e.floor = 0
		s.lru.MoveToFront(el)
	} else {
		s.entries[key] = s.lru.PushFront(&entry{key: key, state: st})
		s.evictLocked()
	}

	var transition *healthChange
	if f.Kind == domain.FeatureSequencer {
		transition = s.recordHealthLocked(f.Chain)
	}
	s.mu.Unlock()

	s.fireTransition(f.Chain, transition)
	return v, nil
}

func (s *Store) invalidateChainLocked(chain domain.Chain, floor uint64) uint64 {
	v := s.version.Add(1)
	for k, el := range s.entries {
		if k.Chain != chain {
			continue
		}
		e := el.Value.(*entry)
		e.invalidated = true
		e.floor = floor
	}
	s.reorgs[chain] = v
	return v
}

func (s *Store) evictLocked() {
	for s.lru.Len() > s.cfg.Capacity {
		back := s.lru.Back()
		e := back.Value.(*entry)
		s.lru.Remove(back)
		delete(s.entries, e.key)
		s.evictions.Add(1)
	}
}

// Get returns the entry for a key, flagged stale when it is older than
// MaxAge or was invalidated by a reorg.
func (s *Store) Get(chain domain.Chain, instrument string) (domain.MarketState, bool) {
	key := domain.StateKey{Chain: chain, Instrument: domain.NormalizeInstrument(instrument)}
	now := s.cfg.Clock()

	s.mu.RLock()
	el, ok := s.entries[key]
	if !ok {
		s.mu.RUnlock()
		return domain.MarketState{}, false
	}
	st := s.viewLocked(el.Value.(*entry), now)
	s.mu.RUnlock()
	return st, true
}

func (s *Store) viewLocked(e *entry, now time.Time) domain.MarketState {
	st := e.state
	st.Invalidated = e.invalidated
	st.Stale = e.invalidated || now.Sub(st.UpdatedAt) > s.cfg.MaxAge
	return st
}

// GetDepth evaluates the pool's slippage curve at sizeUSD.
func (s *Store) GetDepth(chain domain.Chain, instrument string, sizeUSD float64) (domain.SlippageEstimate, error) {
	st, ok := s.Get(chain, instrument)
	if !ok {
		return domain.SlippageEstimate{}, fmt.Errorf("state: depth %s/%s: %w", chain, instrument, domain.ErrNotFound)
	}
	if st.Feature.AMM == nil {
		return domain.SlippageEstimate{}, fmt.Errorf("state: depth %s/%s: not a pool: %w", chain, instrument, domain.ErrInvalidFeature)
	}
	est, ok := st.Feature.AMM.SlippageAt(sizeUSD)
	if !ok {
		return domain.SlippageEstimate{}, fmt.Errorf("state: depth %s/%s: no curve or liquidity: %w", chain, instrument, domain.ErrMissingFeature)
	}
	est.Stale = st.Stale
	return est, nil
}

// IsStale reports whether a key is missing, invalidated or older than MaxAge
// at now.
func (s *Store) IsStale(chain domain.Chain, instrument string, now time.Time) bool {
	key := domain.StateKey{Chain: chain, Instrument: domain.NormalizeInstrument(instrument)}
	s.mu.RLock()
	defer s.mu.RUnlock()
	el, ok := s.entries[key]
	if !ok {
		return true
	}
	return s.viewLocked(el.Value.(*entry), now).Stale
}

// Snapshot copies every entry into an immutable view tagged with the current
// version.
func (s *Store) Snapshot() *domain.Snapshot {
	now := s.cfg.Clock()
	s.mu.RLock()
	entries := make(map[domain.StateKey]domain.MarketState, len(s.entries))
	for k, el := range s.entries {
		entries[k] = s.viewLocked(el.Value.(*entry), now)
	}
	v := s.version.Load()
	s.mu.RUnlock()
	return domain.NewSnapshot(v, now, entries)
}

// Invalidated reports whether any of the chains saw a reorg after version.
func (s *Store) Invalidated(version uint64, chains []domain.Chain) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range chains {
		if s.reorgs[c] > version {
			return true
		}
	}
	return false
}
