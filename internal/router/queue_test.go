package router

import (
	"testing"
	"time"

	"github.com/clustercore/cluster/pkg/types"
)

func TestQueueDropNewestWhenFull(t *testing.T) {
	q := NewQueue(2, DropNewest, 0, 0)
	q.Enqueue(types.ConnectionRequest{RequestID: "1"})
	q.Enqueue(types.ConnectionRequest{RequestID: "2"})
	if err := q.Enqueue(types.ConnectionRequest{RequestID: "3"}); err == nil {
		t.Fatal("expected error enqueueing into a full drop-newest queue")
	}
	if q.Len() != 2 {
		t.Fatalf("expected queue to still hold 2 items, got %d", q.Len())
	}
}

func TestQueueDropOldestWhenFull(t *testing.T) {
	q := NewQueue(2, DropOldest, 0, 0)
	q.Enqueue(types.ConnectionRequest{RequestID: "1"})
	q.Enqueue(types.ConnectionRequest{RequestID: "2"})
	if err := q.Enqueue(types.ConnectionRequest{RequestID: "3"}); err != nil {
		t.Fatalf("expected drop-oldest enqueue to succeed, got: %v", err)
	}
	first, _ := q.Dequeue()
	if first.RequestID != "2" {
		t.Fatalf("expected oldest item dropped, leaving request 2 first, got %s", first.RequestID)
	}
}

func TestQueueBlockSucceedsAfterDequeue(t *testing.T) {
	q := NewQueue(1, Block, time.Second, 0)
	q.Enqueue(types.ConnectionRequest{RequestID: "1"})

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(types.ConnectionRequest{RequestID: "2"})
	}()

	time.Sleep(20 * time.Millisecond)
	q.Dequeue()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected blocked enqueue to succeed once space freed, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for blocked enqueue to complete")
	}
}

func TestQueueBlockTimesOut(t *testing.T) {
	q := NewQueue(1, Block, 30*time.Millisecond, 0)
	q.Enqueue(types.ConnectionRequest{RequestID: "1"})

	if err := q.Enqueue(types.ConnectionRequest{RequestID: "2"}); err == nil {
		t.Fatal("expected block timeout to eventually return an error")
	}
}

func TestQueueRateLimitExhaustsTokens(t *testing.T) {
	q := NewQueue(1, RateLimit, 0, 0)
	q.Enqueue(types.ConnectionRequest{RequestID: "1"})
	if err := q.Enqueue(types.ConnectionRequest{RequestID: "2"}); err == nil {
		t.Fatal("expected rate limit policy to reject when zero tokens configured")
	}
}
