package state_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/domain/domaintest"
	"github.com/alanyoungcy/arbengine/internal/state"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newStore(t *testing.T, capacity int) (*state.Store, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: domaintest.T0}
	s := state.New(state.Config{MaxAge: 30 * time.Second, Capacity: capacity, Clock: clk.Now},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, clk
}

func uni(block uint64, mid float64) domain.Feature {
	return domaintest.Pool(domain.ChainEthereum, "uni-weth-usdc", "uniswap_v3", "WETH", "USDC", mid, 5, 10, block)
}

func TestUpdateAndGet(t *testing.T) {
	s, _ := newStore(t, 0)

	v1, err := s.Update(uni(100, 1850))
	require.NoError(t, err)
	v2, err := s.Update(uni(101, 1851))
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	st, ok := s.Get(domain.ChainEthereum, "uni-weth-usdc")
	require.True(t, ok)
	assert.Equal(t, uint64(101), st.Feature.BlockNumber)
	assert.Equal(t, 1851.0, st.Feature.AMM.MidPrice)
	assert.Equal(t, v2, st.Version)
	assert.False(t, st.Stale)

	_, ok = s.Get(domain.ChainArbitrum, "uni-weth-usdc")
	assert.False(t, ok)
}

func TestSameBlockIsLastWriterWins(t *testing.T) {
	s, _ := newStore(t, 0)
	_, err := s.Update(uni(100, 1850))
	require.NoError(t, err)
	_, err = s.Update(uni(100, 1852))
	require.NoError(t, err)

	st, ok := s.Get(domain.ChainEthereum, "uni-weth-usdc")
	require.True(t, ok)
	assert.Equal(t, 1852.0, st.Feature.AMM.MidPrice)
}

func TestLowerBlockInvalidatesChain(t *testing.T) {
	s, _ := newStore(t, 0)
	_, err := s.Update(uni(105, 1850))
	require.NoError(t, err)
	_, err = s.Update(domaintest.Gas(domain.ChainEthereum, 20, 1, 105))
	require.NoError(t, err)
	_, err = s.Update(domaintest.Gas(domain.ChainArbitrum, 0.1, 0, 9000))
	require.NoError(t, err)
	before := s.Version()

	v, err := s.Update(uni(103, 1700))
	require.ErrorIs(t, err, domain.ErrReorg)
	assert.Greater(t, v, before)

	st, ok := s.Get(domain.ChainEthereum, "uni-weth-usdc")
	require.True(t, ok)
	assert.Equal(t, 1850.0, st.Feature.AMM.MidPrice, "reorged feature must not overwrite")
	assert.True(t, st.Invalidated)
	assert.True(t, st.Stale)

	gas, ok := s.Get(domain.ChainEthereum, domain.GasInstrument)
	require.True(t, ok)
	assert.True(t, gas.Invalidated, "whole chain is invalidated")

	arb, ok := s.Get(domain.ChainArbitrum, domain.GasInstrument)
	require.True(t, ok)
	assert.False(t, arb.Stale)

	assert.True(t, s.Invalidated(before, []domain.Chain{domain.ChainEthereum}))
	assert.False(t, s.Invalidated(before, []domain.Chain{domain.ChainArbitrum}))
	assert.False(t, s.Invalidated(v, []domain.Chain{domain.ChainEthereum}))
}

func TestInvalidatedEntryReseeds(t *testing.T) {
	s, _ := newStore(t, 0)
	_, _ = s.Update(uni(105, 1850))
	_, err := s.Update(uni(103, 1700))
	require.ErrorIs(t, err, domain.ErrReorg)

	_, err = s.Update(uni(102, 1690))
	require.ErrorIs(t, err, domain.ErrReorg, "below the reorg floor")

	_, err = s.Update(uni(103, 1701))
	require.NoError(t, err)
	st, ok := s.Get(domain.ChainEthereum, "uni-weth-usdc")
	require.True(t, ok)
	assert.False(t, st.Stale)
	assert.Equal(t, 1701.0, st.Feature.AMM.MidPrice)
}

func TestStaleAfterMaxAge(t *testing.T) {
	s, clk := newStore(t, 0)
	_, err := s.Update(uni(100, 1850))
	require.NoError(t, err)

	assert.False(t, s.IsStale(domain.ChainEthereum, "uni-weth-usdc", clk.Now()))
	clk.Advance(31 * time.Second)
	assert.True(t, s.IsStale(domain.ChainEthereum, "uni-weth-usdc", clk.Now()))

	st, ok := s.Get(domain.ChainEthereum, "uni-weth-usdc")
	require.True(t, ok, "stale entries are still served")
	assert.True(t, st.Stale)

	assert.True(t, s.IsStale(domain.ChainEthereum, "missing", clk.Now()))
}

func TestLRUEvictsLeastRecentlyUpdated(t *testing.T) {
	s, _ := newStore(t, 2)
	_, _ = s.Update(domaintest.Gas(domain.ChainEthereum, 10, 1, 1))
	_, _ = s.Update(domaintest.Gas(domain.ChainArbitrum, 1, 0, 1))
	_, _ = s.Update(domaintest.Gas(domain.ChainEthereum, 11, 1, 2))
	_, _ = s.Update(domaintest.Gas(domain.ChainBase, 1, 0, 1))

	_, ok := s.Get(domain.ChainArbitrum, domain.GasInstrument)
	assert.False(t, ok)
	_, ok = s.Get(domain.ChainEthereum, domain.GasInstrument)
	assert.True(t, ok)
	_, ok = s.Get(domain.ChainBase, domain.GasInstrument)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), s.Stats().Evictions)
}

func TestGetDepthInterpolates(t *testing.T) {
	s, _ := newStore(t, 0)
	_, err := s.Update(uni(100, 1850))
	require.NoError(t, err)

	est, err := s.GetDepth(domain.ChainEthereum, "uni-weth-usdc", 550_000)
	require.NoError(t, err)
	assert.InDelta(t, 5.5, est.SlippageBps, 1e-9)
	assert.False(t, est.Extrapolated)

	est, err = s.GetDepth(domain.ChainEthereum, "uni-weth-usdc", 20_000_000)
	require.NoError(t, err)
	assert.True(t, est.Extrapolated)
	assert.Greater(t, est.SlippageBps, 100.0)

	_, err = s.GetDepth(domain.ChainEthereum, "nope", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshotIsImmutable(t *testing.T) {
	s, _ := newStore(t, 0)
	_, _ = s.Update(uni(100, 1850))
	snap := s.Snapshot()

	_, _ = s.Update(uni(101, 1900))
	p, ok := snap.Pool(domain.ChainEthereum, "uni-weth-usdc")
	require.True(t, ok)
	assert.Equal(t, 1850.0, p.State.MidPrice)
	assert.Less(t, snap.Version, s.Version())
}

func TestHexInstrumentsAreChecksummed(t *testing.T) {
	s, _ := newStore(t, 0)
	f := domaintest.Pool(domain.ChainBase, "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640", "uniswap_v3", "WETH", "USDC", 1850, 5, 10, 1)
	_, err := s.Update(f)
	require.NoError(t, err)

	_, ok := s.Get(domain.ChainBase, "0x88E6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	assert.True(t, ok)
}

func TestHealthTransitions(t *testing.T) {
	var got []domain.SequencerStatus
	clk := &fakeClock{now: domaintest.T0}
	s := state.New(state.Config{
		MaxAge: time.Minute,
		Clock:  clk.Now,
		OnHealthTransition: func(_ domain.Chain, _, to domain.SequencerStatus) {
			got = append(got, to)
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, _ = s.Update(domaintest.Sequencer(domain.ChainArbitrum, domain.SequencerHealthy, 1))
	_, _ = s.Update(domaintest.Sequencer(domain.ChainArbitrum, domain.SequencerHealthy, 2))
	_, _ = s.Update(domaintest.Sequencer(domain.ChainArbitrum, domain.SequencerDown, 3))
	_, _ = s.Update(domaintest.Sequencer(domain.ChainArbitrum, domain.SequencerDown, 4))
	_, _ = s.Update(domaintest.Sequencer(domain.ChainArbitrum, domain.SequencerHealthy, 5))

	assert.Equal(t, []domain.SequencerStatus{domain.SequencerDown, domain.SequencerHealthy}, got)
	assert.Equal(t, domain.SequencerHealthy, s.ChainHealth(domain.ChainArbitrum))
	assert.Equal(t, domain.SequencerUnknown, s.ChainHealth(domain.ChainOptimism))
}

func TestRejectsInvalidFeature(t *testing.T) {
	s, _ := newStore(t, 0)
	_, err := s.Update(domain.Feature{Chain: domain.ChainBase, Instrument: "x", Kind: domain.FeatureAMM})
	assert.ErrorIs(t, err, domain.ErrInvalidFeature)
}
