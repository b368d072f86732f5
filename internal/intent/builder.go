// Package intent converts approved evaluations into execution-ready trade
// intents and encodes them for the execution boundary.
package intent

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbengine/internal/decision"
	"github.com/alanyoungcy/arbengine/internal/domain"
)

// IDSource assigns a correlation id to an evaluation.
type IDSource func(res domain.EvaluationResult) string

// RandomIDs returns random v4 ids.
func RandomIDs() IDSource {
	return func(domain.EvaluationResult) string { return uuid.NewString() }
}

// SeededIDs derives ids from seed, the candidate id and the snapshot version,
// so replays of the same input produce the same ids.
func SeededIDs(seed string) IDSource {
	ns := uuid.NewSHA1(uuid.NameSpaceOID, []byte("arbengine/"+seed))
	return func(res domain.EvaluationResult) string {
		name := res.CandidateID + "@" + strconv.FormatUint(res.SnapshotVersion, 10)
		return uuid.NewSHA1(ns, []byte(name)).String()
	}
}

// Config controls intent lifetimes.
type Config struct {
	TTL               time.Duration
	DegradedTTLFactor float64
	Clock             func() time.Time
	IDs               IDSource
	// Health is consulted at build time; nil treats every chain as healthy.
	Health decision.HealthSource
}

// Builder is deterministic for a fixed clock and id source.
type Builder struct {
	cfg    Config
	logger *slog.Logger
}

// NewBuilder creates a builder. TTL defaults to 12s and the degraded factor
// to 0.5.
func NewBuilder(cfg Config, logger *slog.Logger) *Builder {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Second
	}
	if cfg.DegradedTTLFactor <= 0 || cfg.DegradedTTLFactor > 1 {
		cfg.DegradedTTLFactor = 0.5
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.IDs == nil {
		cfg.IDs = RandomIDs()
	}
	return &Builder{cfg: cfg, logger: logger.With(slog.String("component", "intent_builder"))}
}

// Build turns an approved evaluation into a TradeIntent. Each leg's
// MinAmountOut is the simulated output after fee and slippage and its
// MaxFeeBps the simulated fee; deadlines are staggered across the TTL so the
// last leg expires with the intent.
func (b *Builder) Build(a decision.Approved) (domain.TradeIntent, error) {
	if a.IsZero() {
		return domain.TradeIntent{}, domain.ErrNotApproved
	}
	res := a.Result()
	if len(res.Legs) == 0 {
		return domain.TradeIntent{}, fmt.Errorf("intent: build %s: no legs: %w", res.CandidateID, domain.ErrMissingFeature)
	}

	created := b.cfg.Clock()
	ttl := b.cfg.TTL
	if degraded := b.degradedChains(res.Chains); len(degraded) > 0 {
		ttl = time.Duration(float64(ttl) * b.cfg.DegradedTTLFactor)
		b.logger.Info("shortened intent ttl for degraded chains",
			slog.String("candidate_id", res.CandidateID),
			slog.Any("chains", degraded),
			slog.Duration("ttl", ttl),
		)
	}

	n := int64(len(res.Legs))
	legs := make([]domain.IntentLeg, len(res.Legs))
	for i, l := range res.Legs {
		legs[i] = domain.IntentLeg{
			Chain:        l.Chain,
			Action:       l.Action,
			Protocol:     l.Protocol,
			Instrument:   l.Instrument,
			AssetIn:      l.AssetIn,
			AmountIn:     l.AmountIn,
			AssetOut:     l.AssetOut,
			MinAmountOut: l.AmountOut,
			MaxFeeBps:    l.FeeBps,
			Deadline:     created.Add(time.Duration(int64(ttl) * int64(i+1) / n)),
		}
	}

	return domain.TradeIntent{
		SchemaVersion:   domain.IntentSchemaVersion,
		CorrelationID:   b.cfg.IDs(res),
		Strategy:        res.Strategy,
		Asset:           res.Asset,
		SizeUSD:         res.OptimalSizeUSD,
		Legs:            legs,
		ExpectedPnLUSD:  res.NetPnLUSD,
		SuccessProb:     res.SuccessProb,
		SnapshotVersion: res.SnapshotVersion,
		CreatedAt:       created,
		TTL:             ttl,
		ExpiresAt:       created.Add(ttl),
	}, nil
}

func (b *Builder) degradedChains(chains []domain.Chain) []domain.Chain {
	if b.cfg.Health == nil {
		return nil
	}
	var out []domain.Chain
	for _, c := range chains {
		if b.cfg.Health.ChainHealth(c) == domain.SequencerDegraded {
			out = append(out, c)
		}
	}
	return out
}
