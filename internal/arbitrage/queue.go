package arbitrage

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// CandidateQueue is the bounded hand-off between detection and simulation.
// Push never blocks: when full, the candidate with the lowest raw spread is
// dropped. Pop returns the highest raw spread first.
type CandidateQueue struct {
	mu       sync.Mutex
	items    []domain.Candidate // ascending RawSpreadBps
	capacity int
	ready    chan struct{}

	dropped atomic.Uint64
	warn    *rate.Limiter
	logger  *slog.Logger
}

// NewCandidateQueue creates a queue holding at most capacity candidates.
func NewCandidateQueue(capacity int, logger *slog.Logger) *CandidateQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &CandidateQueue{
		items:    make([]domain.Candidate, 0, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		warn:     rate.NewLimiter(rate.Limit(0.2), 1),
		logger:   logger.With(slog.String("component", "candidate_queue")),
	}
}

// Push enqueues c and reports whether it was kept.
func (q *CandidateQueue) Push(c domain.Candidate) bool {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		if c.RawSpreadBps <= q.items[0].RawSpreadBps {
			q.mu.Unlock()
			q.noteDrop()
			return false
		}
		q.items = q.items[1:]
		q.noteDrop()
	}
	i := sort.Search(len(q.items), func(i int) bool { return q.items[i].RawSpreadBps > c.RawSpreadBps })
	q.items = append(q.items, domain.Candidate{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = c
	q.mu.Unlock()

	q.signal()
	return true
}

// Pop blocks until a candidate is available or ctx ends.
func (q *CandidateQueue) Pop(ctx context.Context) (domain.Candidate, error) {
	for {
		if c, ok := q.TryPop(); ok {
			return c, nil
		}
		select {
		case <-ctx.Done():
			return domain.Candidate{}, ctx.Err()
		case <-q.ready:
		}
	}
}

// TryPop removes the highest-spread candidate without waiting.
func (q *CandidateQueue) TryPop() (domain.Candidate, bool) {
	q.mu.Lock()
	n := len(q.items)
	if n == 0 {
		q.mu.Unlock()
		return domain.Candidate{}, false
	}
	c := q.items[n-1]
	q.items[n-1] = domain.Candidate{}
	q.items = q.items[:n-1]
	q.mu.Unlock()
	if n > 1 {
		q.signal()
	}
	return c, true
}

// Len returns the number of queued candidates.
func (q *CandidateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many candidates were shed under backpressure.
func (q *CandidateQueue) Dropped() uint64 { return q.dropped.Load() }

func (q *CandidateQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *CandidateQueue) noteDrop() {
	n := q.dropped.Add(1)
	if q.warn.Allow() {
		q.logger.Warn("candidate queue full, dropping lowest spread",
			slog.Int("capacity", q.capacity), slog.Uint64("dropped_total", n))
	}
}
