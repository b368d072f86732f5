package state

import (
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

type healthChange struct {
	from, to domain.SequencerStatus
}

// recordHealthLocked compares the chain's sequencer entry with the last
// reported status. The first observation of a chain only counts as a
// transition when it is not healthy.
func (s *Store) recordHealthLocked(chain domain.Chain) *healthChange {
	cur := domain.SequencerUnknown
	if el, ok := s.entries[domain.StateKey{Chain: chain, Instrument: domain.SequencerInstrument}]; ok {
		e := el.Value.(*entry)
		if !e.invalidated && e.state.Feature.Sequencer != nil {
			cur = e.state.Feature.Sequencer.Status
		}
	}
	prev, seen := s.health[chain]
	s.health[chain] = cur
	if !seen {
		if cur == domain.SequencerHealthy {
			return nil
		}
		prev = domain.SequencerUnknown
	}
	if prev == cur {
		return nil
	}
	return &healthChange{from: prev, to: cur}
}

func (s *Store) fireTransition(chain domain.Chain, c *healthChange) {
	if c == nil {
		return
	}
	s.logger.Info("sequencer health transition",
		slog.String("chain", string(chain)),
		slog.String("from", string(c.from)),
		slog.String("to", string(c.to)),
	)
	if s.cfg.OnHealthTransition != nil {
		s.cfg.OnHealthTransition(chain, c.from, c.to)
	}
}

// ChainHealth returns the live sequencer status of a chain. Missing, stale
// and invalidated reports are unknown.
func (s *Store) ChainHealth(chain domain.Chain) domain.SequencerStatus {
	st, ok := s.Get(chain, domain.SequencerInstrument)
	if !ok || !st.Usable() || st.Feature.Sequencer == nil {
		return domain.SequencerUnknown
	}
	return st.Feature.Sequencer.Status
}

// Stats summarises the store contents.
type Stats struct {
	Version     uint64
	Entries     int
	Stale       int
	Invalidated int
	ByKind      map[domain.FeatureKind]int
	Evictions   uint64
	Reorgs      uint64
}

// Stats counts entries by kind and freshness.
func (s *Store) Stats() Stats {
	now := s.cfg.Clock()
	st := Stats{ByKind: make(map[domain.FeatureKind]int)}

	s.mu.RLock()
	for _, el := range s.entries {
		v := s.viewLocked(el.Value.(*entry), now)
		st.Entries++
		st.ByKind[v.Feature.Kind]++
		if v.Invalidated {
			st.Invalidated++
		}
		if v.Stale {
			st.Stale++
		}
	}
	s.mu.RUnlock()

	st.Version = s.version.Load()
	st.Evictions = s.evictions.Load()
	st.Reorgs = s.reorgHits.Load()
	return st
}
