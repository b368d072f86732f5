package ingest_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/domain/domaintest"
	"github.com/alanyoungcy/arbengine/internal/ingest"
	"github.com/alanyoungcy/arbengine/internal/state"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	blocks map[domain.StateKey][]uint64
}

func (r *recorder) Update(f domain.Feature) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[f.Key()] = append(r.blocks[f.Key()], f.BlockNumber)
	return 0, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.blocks {
		n += len(b)
	}
	return n
}

type sliceSource struct {
	name     string
	features []domain.Feature
}

func (s sliceSource) Name() string { return s.name }

func (s sliceSource) Run(ctx context.Context, emit func(domain.Feature)) error {
	for _, f := range s.features {
		emit(f)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRun_PreservesPerKeyOrder(t *testing.T) {
	rec := &recorder{blocks: make(map[domain.StateKey][]uint64)}
	ing := ingest.New(ingest.Config{Shards: 4, ShardBuffer: 1024}, rec, discardLogger())

	var features []domain.Feature
	for block := uint64(1); block <= 50; block++ {
		for p := range 5 {
			features = append(features, domaintest.Pool(domain.ChainEthereum, fmt.Sprintf("pool-%d", p),
				"uniswap_v3", "WETH", "USDC", 1850, 5, 10, block))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx, sliceSource{name: "test", features: features}) }()

	require.Eventually(t, func() bool { return rec.count() == len(features) }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for key, blocks := range rec.blocks {
		require.Len(t, blocks, 50, key.String())
		for i := 1; i < len(blocks); i++ {
			assert.Less(t, blocks[i-1], blocks[i], key.String())
		}
	}
	assert.Equal(t, uint64(len(features)), ing.Stats().Applied)
}

func TestSubmit_DropsWhenShardFull(t *testing.T) {
	rec := &recorder{blocks: make(map[domain.StateKey][]uint64)}
	ing := ingest.New(ingest.Config{Shards: 1, ShardBuffer: 2}, rec, discardLogger())

	assert.True(t, ing.Submit(domaintest.Gas(domain.ChainEthereum, 10, 1, 1)))
	assert.True(t, ing.Submit(domaintest.Gas(domain.ChainEthereum, 10, 1, 2)))
	assert.False(t, ing.Submit(domaintest.Gas(domain.ChainEthereum, 10, 1, 3)))

	st := ing.Stats()
	assert.Equal(t, uint64(3), st.Submitted)
	assert.Equal(t, uint64(1), st.Dropped)
	assert.Equal(t, 2, ing.Pending())

	assert.Equal(t, 2, ing.Drain())
	assert.Equal(t, []uint64{1, 2}, rec.blocks[domain.StateKey{Chain: domain.ChainEthereum, Instrument: domain.GasInstrument}])
}

func TestDrain_CountsReorgsAndRejects(t *testing.T) {
	store := state.New(state.Config{}, discardLogger())
	ing := ingest.New(ingest.Config{Shards: 2}, store, discardLogger())

	ing.Submit(domaintest.Gas(domain.ChainEthereum, 10, 1, 5))
	ing.Submit(domaintest.Gas(domain.ChainEthereum, 10, 1, 4))
	ing.Submit(domain.Feature{Chain: domain.ChainEthereum, Instrument: "broken", Kind: domain.FeatureAMM})
	ing.Drain()

	st := ing.Stats()
	assert.Equal(t, uint64(1), st.Applied)
	assert.Equal(t, uint64(1), st.Reorgs)
	assert.Equal(t, uint64(1), st.Rejected)
}

func TestReplaySource(t *testing.T) {
	input := strings.Join([]string{
		`{"chain":"ethereum","instrument":"gas","block_number":7,"timestamp":"2026-03-02T12:00:00Z","kind":"gas","gas":{"base_fee_gwei":20,"priority_fee_gwei":1,"native_asset":"WETH"}}`,
		`not json`,
		``,
		`{"chain":"arbitrum","kind":"sequencer","block_number":9,"timestamp":"2026-03-02T12:00:00Z","sequencer":{"status":"healthy"}}`,
	}, "\n")

	src := ingest.NewReaderSource("fixture", strings.NewReader(input), discardLogger())
	var got []domain.Feature
	require.NoError(t, src.Run(context.Background(), func(f domain.Feature) { got = append(got, f) }))

	require.Len(t, got, 2)
	assert.Equal(t, domain.FeatureGas, got[0].Kind)
	assert.Equal(t, 21.0, got[0].Gas.TotalGwei())
	assert.Equal(t, domain.SequencerHealthy, got[1].Sequencer.Status)
	assert.Equal(t, "fixture", src.Name())
}
