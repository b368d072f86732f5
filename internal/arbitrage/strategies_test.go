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

func TestCrossChainNeedsBridge(t *testing.T) {
	features := []domain.Feature{
		domaintest.Pool(domain.ChainArbitrum, "arb-weth-usdc", "camelot", "WETH", "USDC", 1840, 5, 5, 10),
		domaintest.Pool(domain.ChainEthereum, "eth-weth-usdc", "uniswap_v3", "WETH", "USDC", 1860, 5, 5, 20),
	}
	cfg := arbitrage.CrossChainConfig{
		Strategy: strategyConfig([]string{"WETH"}, domain.ChainArbitrum, domain.ChainEthereum),
	}
	cc := arbitrage.NewCrossChain(cfg, discardLogger())

	cands, err := cc.Detect(context.Background(), domaintest.Snapshot(1, features...))
	require.NoError(t, err)
	assert.Empty(t, cands, "no bridge route")

	features = append(features,
		domaintest.Bridge(domain.ChainArbitrum, domain.ChainEthereum, "across", "WETH", 4, 300, 5_000_000, 10))
	cands, err = cc.Detect(context.Background(), domaintest.Snapshot(2, features...))
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	require.Len(t, c.Legs, 3)
	assert.Equal(t, domain.ActionSwap, c.Legs[0].Action)
	assert.Equal(t, domain.ChainArbitrum, c.Legs[0].Chain)
	assert.Equal(t, domain.ActionBridge, c.Legs[1].Action)
	assert.Equal(t, domain.ChainEthereum, c.Legs[1].DestChain)
	assert.Equal(t, domain.ChainEthereum, c.Legs[2].Chain)
	assert.InDelta(t, 20.0/1840*10_000, c.RawSpreadBps, 1e-9)
	assert.Equal(t, []domain.Chain{domain.ChainArbitrum, domain.ChainEthereum}, c.Chains())
}

func TestTriangularFindsProfitableCycle(t *testing.T) {
	snap := domaintest.Snapshot(3,
		domaintest.Pool(domain.ChainBase, "wbtc-weth", "aerodrome", "WBTC", "WETH", 20, 5, 5, 1),
		domaintest.Pool(domain.ChainBase, "wbtc-usdc", "uniswap_v3", "WBTC", "USDC", 40_400, 5, 5, 1),
		domaintest.Pool(domain.ChainBase, "weth-usdc", "uniswap_v3", "WETH", "USDC", 2000, 5, 5, 1),
	)
	tri := arbitrage.NewTriangular(arbitrage.TriangularConfig{
		Strategy: strategyConfig([]string{"WETH"}, domain.ChainBase),
	}, discardLogger())

	cands, err := tri.Detect(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.InDelta(t, 100, c.RawSpreadBps, 1e-6)
	require.Len(t, c.Legs, 3)
	assert.Equal(t, "WETH", c.Legs[0].AssetIn)
	assert.Equal(t, "WBTC", c.Legs[0].AssetOut)
	assert.Equal(t, "USDC", c.Legs[1].AssetOut)
	assert.Equal(t, "WETH", c.Legs[2].AssetOut)
}

func TestFlashLoanCarriesRequestedNotional(t *testing.T) {
	features := append(domaintest.DexArbMarket(1),
		domaintest.FlashLoan(domain.ChainEthereum, "aave_v3", "USDC", 15_000_000, 5, 1))
	snap := domaintest.Snapshot(4, features...)

	cfg := strategyConfig([]string{"WETH"}, domain.ChainEthereum)
	cfg.MaxPositionUSD = 20_000_000
	cfg.CapitalUSD = 1_000_000
	fl := arbitrage.NewFlashLoan(arbitrage.FlashLoanConfig{Strategy: cfg}, discardLogger())

	cands, err := fl.Detect(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, 20_000_000.0, c.NotionalUSD)
	assert.True(t, c.RequiresFlashLoan())
	require.Len(t, c.Legs, 4)
	assert.Equal(t, domain.ActionFlashBorrow, c.Legs[0].Action)
	assert.Equal(t, domain.ActionFlashRepay, c.Legs[3].Action)
	assert.Equal(t, "USDC", c.Legs[0].AssetIn)

	cfg.CapitalUSD = 25_000_000
	funded := arbitrage.NewFlashLoan(arbitrage.FlashLoanConfig{Strategy: cfg}, discardLogger())
	cands, err = funded.Detect(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, cands, "own capital covers the position")
}
