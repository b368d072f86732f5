package domain

import (
	"sort"
	"strings"
	"time"
)

// StableAssets are priced at one USD.
var StableAssets = map[string]bool{"USDC": true, "USDT": true, "DAI": true, "USDC.E": true}

// IsStable reports whether the asset is a USD stablecoin.
func IsStable(asset string) bool { return StableAssets[strings.ToUpper(asset)] }

// MarketState is the latest feature known for one (chain, instrument) key.
type MarketState struct {
	Feature     Feature
	Version     uint64
	UpdatedAt   time.Time
	Stale       bool
	Invalidated bool
}

// Usable reports whether the entry can back a decision.
func (m MarketState) Usable() bool { return !m.Stale && !m.Invalidated }

// Pool is an AMM entry of a snapshot.
type Pool struct {
	Chain      Chain
	Instrument string
	State      *AMMState
	Stale      bool
}

// Snapshot is an immutable point-in-time view of the state store. Every
// candidate carries the snapshot it was derived from.
type Snapshot struct {
	Version uint64
	TakenAt time.Time

	entries map[StateKey]MarketState
	pools   map[Chain][]Pool
	chains  []Chain
}

// NewSnapshot indexes entries. The map is owned by the snapshot afterwards.
func NewSnapshot(version uint64, takenAt time.Time, entries map[StateKey]MarketState) *Snapshot {
	s := &Snapshot{
		Version: version,
		TakenAt: takenAt,
		entries: entries,
		pools:   make(map[Chain][]Pool),
	}
	seen := make(map[Chain]bool)
	for k, e := range entries {
		if !seen[k.Chain] {
			seen[k.Chain] = true
			s.chains = append(s.chains, k.Chain)
		}
		if e.Feature.Kind == FeatureAMM && e.Feature.AMM != nil {
			s.pools[k.Chain] = append(s.pools[k.Chain], Pool{
				Chain:      k.Chain,
				Instrument: k.Instrument,
				State:      e.Feature.AMM,
				Stale:      !e.Usable(),
			})
		}
	}
	sort.Slice(s.chains, func(i, j int) bool { return s.chains[i] < s.chains[j] })
	for c := range s.pools {
		ps := s.pools[c]
		sort.Slice(ps, func(i, j int) bool { return ps[i].Instrument < ps[j].Instrument })
	}
	return s
}

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// Age is the time elapsed since the snapshot was taken.
func (s *Snapshot) Age(now time.Time) time.Duration { return now.Sub(s.TakenAt) }

// Get returns the entry for a key.
func (s *Snapshot) Get(chain Chain, instrument string) (MarketState, bool) {
	e, ok := s.entries[StateKey{Chain: chain, Instrument: instrument}]
	return e, ok
}

// Chains lists every chain with at least one entry, sorted.
func (s *Snapshot) Chains() []Chain { return s.chains }

// Pools returns the chain's AMM pools sorted by instrument, stale ones
// included and flagged.
func (s *Snapshot) Pools(chain Chain) []Pool { return s.pools[chain] }

// Pool returns one AMM entry.
func (s *Snapshot) Pool(chain Chain, instrument string) (Pool, bool) {
	e, ok := s.Get(chain, instrument)
	if !ok || e.Feature.AMM == nil {
		return Pool{}, false
	}
	return Pool{Chain: chain, Instrument: instrument, State: e.Feature.AMM, Stale: !e.Usable()}, true
}

// Gas returns the chain's gas state.
func (s *Snapshot) Gas(chain Chain) (*GasState, bool, bool) {
	e, ok := s.Get(chain, GasInstrument)
	if !ok || e.Feature.Gas == nil {
		return nil, false, false
	}
	return e.Feature.Gas, !e.Usable(), true
}

// Health returns the sequencer status recorded in the snapshot. Missing or
// stale reports are unknown.
func (s *Snapshot) Health(chain Chain) SequencerStatus {
	e, ok := s.Get(chain, SequencerInstrument)
	if !ok || e.Feature.Sequencer == nil || !e.Usable() {
		return SequencerUnknown
	}
	return e.Feature.Sequencer.Status
}

// PriceUSD prices an asset from the deepest usable stablecoin pool, preferring
// the given chain and falling back to the other chains in order.
func (s *Snapshot) PriceUSD(chain Chain, asset string) (float64, bool) {
	if IsStable(asset) {
		return 1, true
	}
	if p, ok := s.priceOn(chain, asset); ok {
		return p, true
	}
	for _, c := range s.chains {
		if c == chain {
			continue
		}
		if p, ok := s.priceOn(c, asset); ok {
			return p, true
		}
	}
	return 0, false
}

func (s *Snapshot) priceOn(chain Chain, asset string) (float64, bool) {
	best, depth := 0.0, -1.0
	for _, p := range s.pools[chain] {
		if p.Stale || !p.State.Has(asset) || !IsStable(p.State.Other(asset)) {
			continue
		}
		rate, ok := p.State.Rate(asset, p.State.Other(asset))
		if !ok {
			continue
		}
		if p.State.LiquidityUSD > depth {
			best, depth = rate, p.State.LiquidityUSD
		}
	}
	return best, depth >= 0
}

// BridgeRoute is a usable bridge entry of a snapshot.
type BridgeRoute struct {
	Source     Chain
	Instrument string
	State      *BridgeState
}

// Bridges returns active, usable routes from src to dst for the asset sorted
// by flat fee then instrument.
func (s *Snapshot) Bridges(src, dst Chain, asset string) []BridgeRoute {
	var out []BridgeRoute
	for k, e := range s.entries {
		b := e.Feature.Bridge
		if k.Chain != src || b == nil || !e.Usable() || !b.Active {
			continue
		}
		if b.DestChain == dst && b.Asset == asset {
			out = append(out, BridgeRoute{Source: src, Instrument: k.Instrument, State: b})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].State.FeeBps != out[j].State.FeeBps {
			return out[i].State.FeeBps < out[j].State.FeeBps
		}
		return out[i].Instrument < out[j].Instrument
	})
	return out
}

// FlashProvider is a usable flash-loan entry of a snapshot.
type FlashProvider struct {
	Chain      Chain
	Instrument string
	State      *FlashLoanState
}

// FlashLoans returns active providers of the asset on a chain, deepest first.
func (s *Snapshot) FlashLoans(chain Chain, asset string) []FlashProvider {
	var out []FlashProvider
	for k, e := range s.entries {
		fl := e.Feature.FlashLoan
		if k.Chain != chain || fl == nil || !e.Usable() || !fl.Active || fl.Asset != asset {
			continue
		}
		out = append(out, FlashProvider{Chain: chain, Instrument: k.Instrument, State: fl})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].State.AvailableUSD != out[j].State.AvailableUSD {
			return out[i].State.AvailableUSD > out[j].State.AvailableUSD
		}
		return out[i].Instrument < out[j].Instrument
	})
	return out
}
