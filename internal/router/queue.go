package router

import (
	"sync"
	"time"

	"github.com/clustercore/cluster/pkg/errors"
	"github.com/clustercore/cluster/pkg/types"
	"golang.org/x/time/rate"
)

// BackPressurePolicy selects what happens when the request queue is full.
type BackPressurePolicy int

const (
	DropOldest BackPressurePolicy = iota
	DropNewest
	Block
	RateLimit
)

// ParseBackPressurePolicy maps a RouterConfig.BackPressurePolicy string,
// defaulting to DropNewest for an unrecognized value.
func ParseBackPressurePolicy(s string) BackPressurePolicy {
	switch s {
	case "drop_oldest":
		return DropOldest
	case "block":
		return Block
	case "rate_limit":
		return RateLimit
	default:
		return DropNewest
	}
}

// Queue is a bounded FIFO of pending connection requests with a
// configurable back-pressure policy for when it is full.
type Queue struct {
	mu           sync.Mutex
	notFull      *sync.Cond
	items        []types.ConnectionRequest
	capacity     int
	policy       BackPressurePolicy
	blockTimeout time.Duration
	limiter      *rate.Limiter
	now          func() time.Time
}

// NewQueue creates a Queue with the given capacity and policy.
func NewQueue(capacity int, policy BackPressurePolicy, blockTimeout time.Duration, rateLimitPerSecond float64) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	burst := int(rateLimitPerSecond)
	if rateLimitPerSecond > 0 && burst < 1 {
		burst = 1
	}
	q := &Queue{
		capacity:     capacity,
		policy:       policy,
		blockTimeout: blockTimeout,
		limiter:      rate.NewLimiter(rate.Limit(rateLimitPerSecond), burst),
		now:          time.Now,
	}
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds req to the queue, applying the configured back-pressure
// policy if the queue is full.
func (q *Queue) Enqueue(req types.ConnectionRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) < q.capacity {
		q.items = append(q.items, req)
		return nil
	}

	switch q.policy {
	case DropOldest:
		q.items = append(q.items[1:], req)
		return nil
	case DropNewest:
		return errors.New(errors.ErrCodeQueueFull, "queue full, dropping newest request").
			WithComponent("router").WithOperation("enqueue")
	case RateLimit:
		if !q.limiter.Allow() {
			return errors.New(errors.ErrCodeQueueFull, "queue full and rate limit exhausted").
				WithComponent("router").WithOperation("enqueue")
		}
		q.items = append(q.items[1:], req)
		return nil
	case Block:
		return q.enqueueBlockingLocked(req)
	default:
		return errors.New(errors.ErrCodeQueueFull, "queue full").
			WithComponent("router").WithOperation("enqueue")
	}
}

// enqueueBlockingLocked waits, with q.mu held via q.notFull, for space to
// free up in the queue, giving up after blockTimeout. Callers must hold
// q.mu on entry; sync.Cond.Wait releases and reacquires it across waits.
func (q *Queue) enqueueBlockingLocked(req types.ConnectionRequest) error {
	timeout := q.blockTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := q.now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	for len(q.items) >= q.capacity {
		if !q.now().Before(deadline) {
			return errors.New(errors.ErrCodeQueueFull, "queue full, block_timeout exceeded").
				WithComponent("router").WithOperation("enqueue")
		}
		q.notFull.Wait()
	}
	q.items = append(q.items, req)
	return nil
}

// Dequeue removes and returns the oldest request, if any.
func (q *Queue) Dequeue() (types.ConnectionRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return types.ConnectionRequest{}, false
	}
	req := q.items[0]
	q.items = q.items[1:]
	q.notFull.Broadcast()
	return req, true
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
