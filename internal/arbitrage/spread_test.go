package arbitrage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/arbitrage"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/domain/domaintest"
)

func TestSpreadDetectsCrossVenueSpread(t *testing.T) {
	snap := domaintest.Snapshot(7, domaintest.DexArbMarket(100)...)
	s := arbitrage.NewSpread(arbitrage.SpreadConfig{
		Strategy: strategyConfig([]string{"WETH"}, domain.ChainEthereum),
	}, discardLogger())

	cands, err := s.Detect(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, arbitrage.StrategyDexArb, c.Strategy)
	assert.Equal(t, "WETH", c.Asset)
	assert.Equal(t, uint64(7), c.SnapshotVersion)
	assert.Same(t, snap, c.Snapshot)
	assert.InDelta(t, 5.0/1850*10_000, c.RawSpreadBps, 1e-9)

	require.Len(t, c.Legs, 2)
	assert.Equal(t, "uni-weth-usdc", c.Legs[0].Instrument)
	assert.Equal(t, "USDC", c.Legs[0].AssetIn)
	assert.Equal(t, "WETH", c.Legs[0].AssetOut)
	assert.Equal(t, "curve-weth-usdc", c.Legs[1].Instrument)
	assert.Equal(t, "WETH", c.Legs[1].AssetIn)

	cheap, _ := snap.Pool(domain.ChainEthereum, c.Legs[0].Instrument)
	rich, _ := snap.Pool(domain.ChainEthereum, c.Legs[1].Instrument)
	assert.InDelta(t, 5.0, rich.State.MidPrice-cheap.State.MidPrice, 1e-9)
}

func TestSpreadIDsAreStablePerSnapshot(t *testing.T) {
	snap := domaintest.Snapshot(7, domaintest.DexArbMarket(100)...)
	s := arbitrage.NewSpread(arbitrage.SpreadConfig{
		Strategy: strategyConfig([]string{"WETH"}, domain.ChainEthereum),
	}, discardLogger())

	a, err := s.Detect(context.Background(), snap)
	require.NoError(t, err)
	b, err := s.Detect(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, a[0].ID, b[0].ID)

	other := domaintest.Snapshot(8, domaintest.DexArbMarket(101)...)
	c, err := s.Detect(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, a[0].ID, c[0].ID)
}

func TestSpreadIgnoresSameProtocolAndWhitelist(t *testing.T) {
	snap := domaintest.Snapshot(1,
		domaintest.Pool(domain.ChainEthereum, "uni-a", "uniswap_v3", "WETH", "USDC", 1850, 5, 2, 1),
		domaintest.Pool(domain.ChainEthereum, "uni-b", "uniswap_v3", "WETH", "USDC", 1900, 5, 2, 1),
	)
	s := arbitrage.NewSpread(arbitrage.SpreadConfig{
		Strategy: strategyConfig([]string{"WETH"}, domain.ChainEthereum),
	}, discardLogger())
	cands, err := s.Detect(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, cands)

	market := domaintest.Snapshot(1, domaintest.DexArbMarket(1)...)
	offChain := arbitrage.NewSpread(arbitrage.SpreadConfig{
		Strategy: strategyConfig([]string{"WETH"}, domain.ChainArbitrum),
	}, discardLogger())
	cands, err = offChain.Detect(context.Background(), market)
	require.NoError(t, err)
	assert.Empty(t, cands)

	offAsset := arbitrage.NewSpread(arbitrage.SpreadConfig{
		Strategy: strategyConfig([]string{"WBTC"}, domain.ChainEthereum),
	}, discardLogger())
	cands, err = offAsset.Detect(context.Background(), market)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestSpreadSkipsDownChains(t *testing.T) {
	features := append(domaintest.DexArbMarket(1),
		domaintest.Sequencer(domain.ChainEthereum, domain.SequencerDown, 2))
	snap := domaintest.Snapshot(1, features...)
	s := arbitrage.NewSpread(arbitrage.SpreadConfig{
		Strategy: strategyConfig([]string{"WETH"}, domain.ChainEthereum),
	}, discardLogger())
	cands, err := s.Detect(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, cands)
}
