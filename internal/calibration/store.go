// Package calibration publishes the coefficient set read by the simulation
// engine. Readers load an immutable snapshot; the single writer clones,
// mutates and swaps.
package calibration

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Store holds the current CalibrationState behind an atomic pointer.
type Store struct {
	cur   atomic.Pointer[domain.CalibrationState]
	write sync.Mutex
	clock func() time.Time
}

// NewStore publishes initial as version 1. A nil initial starts unbiased.
func NewStore(initial *domain.CalibrationState, defaultSuccessRate float64) *Store {
	s := &Store{clock: time.Now}
	if initial == nil {
		initial = domain.NewCalibrationState(defaultSuccessRate)
	} else {
		initial = initial.Clone()
	}
	if initial.Version == 0 {
		initial.Version = 1
	}
	s.cur.Store(initial)
	return s
}

// Load returns the published state. Callers must not mutate it.
func (s *Store) Load() *domain.CalibrationState { return s.cur.Load() }

// Update applies fn to a private copy and publishes it atomically. Concurrent
// readers observe either the previous or the new state in full.
func (s *Store) Update(fn func(next *domain.CalibrationState)) *domain.CalibrationState {
	s.write.Lock()
	defer s.write.Unlock()

	next := s.cur.Load().Clone()
	fn(next)
	next.Version++
	next.UpdatedAt = s.clock()
	s.cur.Store(next)
	return next
}

// Replace publishes state wholesale, used when restoring a checkpoint.
func (s *Store) Replace(state *domain.CalibrationState) {
	s.write.Lock()
	defer s.write.Unlock()
	next := state.Clone()
	if cur := s.cur.Load(); next.Version <= cur.Version {
		next.Version = cur.Version + 1
	}
	s.cur.Store(next)
}
