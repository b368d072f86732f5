package arbitrage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/arbitrage"
	"github.com/alanyoungcy/arbengine/internal/domain"
)

func TestQueueDropsLowestSpreadWhenFull(t *testing.T) {
	q := arbitrage.NewCandidateQueue(2, discardLogger())

	assert.True(t, q.Push(domain.Candidate{ID: "ten", RawSpreadBps: 10}))
	assert.True(t, q.Push(domain.Candidate{ID: "twenty", RawSpreadBps: 20}))
	assert.False(t, q.Push(domain.Candidate{ID: "five", RawSpreadBps: 5}))
	assert.True(t, q.Push(domain.Candidate{ID: "thirty", RawSpreadBps: 30}))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, uint64(2), q.Dropped())

	ctx := context.Background()
	c, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "thirty", c.ID)
	c, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "twenty", c.ID)
}

func TestQueuePopWaitsForPush(t *testing.T) {
	q := arbitrage.NewCandidateQueue(4, discardLogger())
	got := make(chan string, 1)
	go func() {
		c, err := q.Pop(context.Background())
		if err == nil {
			got <- c.ID
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(domain.Candidate{ID: "late", RawSpreadBps: 1})

	select {
	case id := <-got:
		assert.Equal(t, "late", id)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake")
	}
}

func TestQueuePopHonoursContext(t *testing.T) {
	q := arbitrage.NewCandidateQueue(1, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
