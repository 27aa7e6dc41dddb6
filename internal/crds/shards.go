package crds

import (
	"hash/fnv"
	"math/rand"
	"sync"

	"github.com/clustercore/cluster/pkg/types"
)

// Shards partitions label membership by origin hash so that pull-request
// bloom filters can be built and compared one shard at a time instead of
// locking the whole table. The shard count must be a power of two.
type Shards struct {
	mask   uint64
	shards []shard
}

type shard struct {
	mu     sync.RWMutex
	labels map[string]map[types.CrdsValueLabel]struct{}
}

// NewShards creates a Shards index with n buckets, rounded up to the next
// power of two (minimum 1).
func NewShards(n int) *Shards {
	size := 1
	for size < n {
		size <<= 1
	}
	s := &Shards{
		mask:   uint64(size - 1),
		shards: make([]shard, size),
	}
	for i := range s.shards {
		s.shards[i].labels = make(map[string]map[types.CrdsValueLabel]struct{})
	}
	return s
}

func (s *Shards) index(origin string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(origin))
	return h.Sum64() & s.mask
}

// Add records that origin owns label within its shard.
func (s *Shards) Add(origin string, label types.CrdsValueLabel) {
	sh := &s.shards[s.index(origin)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	labels, ok := sh.labels[origin]
	if !ok {
		labels = make(map[types.CrdsValueLabel]struct{})
		sh.labels[origin] = labels
	}
	labels[label] = struct{}{}
}

// Remove drops label from origin's shard entry.
func (s *Shards) Remove(origin string, label types.CrdsValueLabel) {
	sh := &s.shards[s.index(origin)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	labels, ok := sh.labels[origin]
	if !ok {
		return
	}
	delete(labels, label)
	if len(labels) == 0 {
		delete(sh.labels, origin)
	}
}

// OriginsInShard returns the set of origins whose labels hash to the same
// shard as origin, including origin itself. Used by pull anti-entropy to
// scope bloom filter comparisons to a manageable subset of the table.
func (s *Shards) OriginsInShard(origin string) []string {
	sh := &s.shards[s.index(origin)]
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	out := make([]string, 0, len(sh.labels))
	for o := range sh.labels {
		out = append(out, o)
	}
	return out
}

// NumShards returns the number of shard buckets.
func (s *Shards) NumShards() int {
	return len(s.shards)
}

// Sample returns up to maxCount origins drawn round-robin across shard
// buckets, for building a bloom filter seed without scanning the whole
// table. Bucket order is shuffled on every call; within a bucket, origins
// come back in map iteration order.
func (s *Shards) Sample(maxCount int) []string {
	if maxCount <= 0 {
		return nil
	}
	out := make([]string, 0, maxCount)
	iters := make([]func() (string, bool), len(s.shards))
	for i := range s.shards {
		iters[i] = originIterator(&s.shards[i])
	}
	rand.Shuffle(len(iters), func(i, j int) { iters[i], iters[j] = iters[j], iters[i] })
	for len(out) < maxCount {
		progressed := false
		for _, next := range iters {
			if len(out) >= maxCount {
				break
			}
			if origin, ok := next(); ok {
				out = append(out, origin)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

// originIterator returns a closure yielding sh's origins one at a time,
// snapshotting them under a single read lock so Sample never blocks a
// shard for its whole scan.
func originIterator(sh *shard) func() (string, bool) {
	sh.mu.RLock()
	origins := make([]string, 0, len(sh.labels))
	for o := range sh.labels {
		origins = append(origins, o)
	}
	sh.mu.RUnlock()
	i := 0
	return func() (string, bool) {
		if i >= len(origins) {
			return "", false
		}
		o := origins[i]
		i++
		return o, true
	}
}
