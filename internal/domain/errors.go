package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidFeature      = errors.New("invalid feature")
	ErrReorg               = errors.New("block number regressed")
	ErrStaleSnapshot       = errors.New("stale snapshot")
	ErrLiquidityExceeded   = errors.New("liquidity exceeded")
	ErrMissingFeature      = errors.New("missing feature")
	ErrSnapshotInvalidated = errors.New("snapshot invalidated by reorg")
	ErrNotApproved         = errors.New("evaluation not approved")
	ErrNoMatch             = errors.New("no matching intent")
	ErrChecksum            = errors.New("checksum mismatch")
	ErrUnsupportedVersion  = errors.New("unsupported schema version")
	ErrUnknownStrategy     = errors.New("unknown strategy")
	ErrLockHeld            = errors.New("lock already held")
)

// SimErrorKind classifies simulation failures.
type SimErrorKind int

const (
	SimStaleSnapshot SimErrorKind = iota + 1
	SimLiquidityExceeded
	SimMissingFeature
)

func (k SimErrorKind) String() string {
	switch k {
	case SimStaleSnapshot:
		return "stale_snapshot"
	case SimLiquidityExceeded:
		return "liquidity_exceeded"
	case SimMissingFeature:
		return "missing_feature"
	default:
		return "unknown"
	}
}

// SimError is the typed failure returned by the simulation engine. It matches
// the corresponding sentinel through errors.Is.
type SimError struct {
	Kind       SimErrorKind
	Chain      Chain
	Instrument string
	Detail     string
	Required   float64
	Available  float64
}

func (e *SimError) Error() string {
	msg := fmt.Sprintf("simulation: %s", e.Kind)
	if e.Chain != "" || e.Instrument != "" {
		msg += fmt.Sprintf(" [%s/%s]", e.Chain, e.Instrument)
	}
	if e.Kind == SimLiquidityExceeded {
		msg += fmt.Sprintf(": required %.2f available %.2f", e.Required, e.Available)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is maps the error kind onto its sentinel.
func (e *SimError) Is(target error) bool {
	switch e.Kind {
	case SimStaleSnapshot:
		return target == ErrStaleSnapshot
	case SimLiquidityExceeded:
		return target == ErrLiquidityExceeded
	case SimMissingFeature:
		return target == ErrMissingFeature
	}
	return false
}

// MissingFeature builds a SimError for an absent state entry.
func MissingFeature(chain Chain, instrument, detail string) *SimError {
	return &SimError{Kind: SimMissingFeature, Chain: chain, Instrument: instrument, Detail: detail}
}

// StaleSnapshot builds a SimError for a snapshot or entry past max-age.
func StaleSnapshot(chain Chain, instrument, detail string) *SimError {
	return &SimError{Kind: SimStaleSnapshot, Chain: chain, Instrument: instrument, Detail: detail}
}
