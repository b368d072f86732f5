package domain

import (
	"sort"
	"time"
)

// LegAction is the kind of atomic step within a path.
type LegAction string

const (
	ActionSwap        LegAction = "swap"
	ActionBridge      LegAction = "bridge"
	ActionFlashBorrow LegAction = "flash_borrow"
	ActionFlashRepay  LegAction = "flash_repay"
)

// CandidateLeg is one step of a detected path. DestChain is set on bridge legs.
type CandidateLeg struct {
	Chain      Chain     `json:"chain"`
	Action     LegAction `json:"action"`
	Protocol   string    `json:"protocol"`
	Instrument string    `json:"instrument"`
	AssetIn    string    `json:"asset_in"`
	AssetOut   string    `json:"asset_out"`
	DestChain  Chain     `json:"dest_chain,omitempty"`
}

// Candidate is a detected, not yet evaluated opportunity. It references the
// immutable snapshot it was derived from and is consumed once.
type Candidate struct {
	ID              string
	Strategy        string
	Asset           string
	Legs            []CandidateLeg
	RawSpreadBps    float64
	Confidence      float64
	NotionalUSD     float64
	SnapshotVersion uint64
	Snapshot        *Snapshot
	DetectedAt      time.Time
}

// Chains returns every chain touched by the path, sorted.
func (c Candidate) Chains() []Chain {
	return legChains(c.Legs)
}

// RequiresFlashLoan reports whether the path borrows its capital.
func (c Candidate) RequiresFlashLoan() bool {
	for _, l := range c.Legs {
		if l.Action == ActionFlashBorrow {
			return true
		}
	}
	return false
}

func legChains(legs []CandidateLeg) []Chain {
	seen := make(map[Chain]bool, len(legs))
	var out []Chain
	add := func(c Chain) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, l := range legs {
		add(l.Chain)
		add(l.DestChain)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
