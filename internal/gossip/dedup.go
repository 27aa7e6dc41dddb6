package gossip

import (
	"container/list"
	"sync"
)

// DedupCache is a fixed-capacity LRU of content hashes, used to drop
// gossip messages this node has already processed before they are
// rebroadcast to the active set.
type DedupCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

// NewDedupCache creates a cache holding up to capacity entries.
func NewDedupCache(capacity int) *DedupCache {
	if capacity < 1 {
		capacity = 1
	}
	return &DedupCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Seen records contentHash and reports whether it had already been seen.
// A fresh entry is inserted as most-recently-used; a repeat touch moves the
// existing entry to the front.
func (d *DedupCache) Seen(contentHash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[contentHash]; ok {
		d.order.MoveToFront(el)
		return true
	}

	el := d.order.PushFront(contentHash)
	d.index[contentHash] = el

	if d.order.Len() > d.capacity {
		oldest := d.order.Back()
		if oldest != nil {
			d.order.Remove(oldest)
			delete(d.index, oldest.Value.(string))
		}
	}
	return false
}

// Len returns the current number of cached entries.
func (d *DedupCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

// ShredKey identifies a slot/index pair for duplicate-shred detection.
type ShredKey struct {
	Slot  uint64
	Index uint32
}

// ShredDetector flags when two distinct payloads claim the same
// (slot, index) coordinate, which would indicate an equivocating or
// malfunctioning origin.
type ShredDetector struct {
	mu   sync.Mutex
	seen map[ShredKey]string // key -> content hash of the first payload seen
}

// NewShredDetector creates an empty detector.
func NewShredDetector() *ShredDetector {
	return &ShredDetector{seen: make(map[ShredKey]string)}
}

// Observe records a shred and reports whether it conflicts with a
// previously observed shred at the same coordinate (different content
// hash). The first observation for a coordinate never conflicts.
func (d *ShredDetector) Observe(key ShredKey, contentHash string) (duplicate bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prior, ok := d.seen[key]
	if !ok {
		d.seen[key] = contentHash
		return false
	}
	return prior != contentHash
}

// Forget drops tracked state for slots at or below upTo, bounding memory
// growth as the ledger advances.
func (d *ShredDetector) Forget(upTo uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.seen {
		if k.Slot <= upTo {
			delete(d.seen, k)
		}
	}
}
