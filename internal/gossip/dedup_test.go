package gossip

import "testing"

func TestDedupCacheFirstSeenFalse(t *testing.T) {
	d := NewDedupCache(10)
	if d.Seen("hash-1") {
		t.Fatal("first observation should report unseen")
	}
	if !d.Seen("hash-1") {
		t.Fatal("second observation should report seen")
	}
}

func TestDedupCacheEvictsOldest(t *testing.T) {
	d := NewDedupCache(2)
	d.Seen("h1")
	d.Seen("h2")
	d.Seen("h3") // evicts h1

	if d.Seen("h1") {
		t.Fatal("h1 should have been evicted and reported as unseen again")
	}
}

func TestShredDetectorFirstObservationNotDuplicate(t *testing.T) {
	d := NewShredDetector()
	key := ShredKey{Slot: 10, Index: 1}
	if d.Observe(key, "hash-a") {
		t.Fatal("first observation should never be flagged duplicate")
	}
}

func TestShredDetectorConflictingPayload(t *testing.T) {
	d := NewShredDetector()
	key := ShredKey{Slot: 10, Index: 1}
	d.Observe(key, "hash-a")
	if !d.Observe(key, "hash-b") {
		t.Fatal("expected conflict for different content hash at same coordinate")
	}
	if d.Observe(key, "hash-a") {
		t.Fatal("replaying the original hash should not be flagged as a conflict")
	}
}

func TestShredDetectorForget(t *testing.T) {
	d := NewShredDetector()
	key := ShredKey{Slot: 5, Index: 0}
	d.Observe(key, "hash-a")
	d.Forget(5)
	if d.Observe(key, "hash-b") {
		t.Fatal("forgotten slot should be treated as first observation")
	}
}
