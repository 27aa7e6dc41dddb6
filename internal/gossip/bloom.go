package gossip

import (
	"math/bits"

	"github.com/spaolacci/murmur3"
)

// numHashFuncs is the number of independent hash functions the pull
// anti-entropy bloom filter uses to bound its false-positive rate.
const numHashFuncs = 3

// BloomFilter is a fixed-size bit set used by pull requests to tell a peer
// which content hashes this node already has, without sending the hashes
// themselves.
type BloomFilter struct {
	bits []uint64
	n    uint32 // bit count
}

// NewBloomFilter creates a filter sized for roughly expectedItems entries.
// bitsPerItem controls the false-positive/size tradeoff; with the three hash
// positions used here, 10 bits/item gives a false-positive rate around 1.7%.
func NewBloomFilter(expectedItems int, bitsPerItem int) *BloomFilter {
	if expectedItems < 1 {
		expectedItems = 1
	}
	if bitsPerItem < 1 {
		bitsPerItem = 10
	}
	n := uint32(expectedItems * bitsPerItem)
	if n == 0 {
		n = 64
	}
	words := (n + 63) / 64
	return &BloomFilter{
		bits: make([]uint64, words),
		n:    words * 64,
	}
}

func (b *BloomFilter) positions(key string) [numHashFuncs]uint32 {
	a64, c64 := murmur3.Sum128([]byte(key))
	a := uint32(a64)
	c := uint32(c64)

	var pos [numHashFuncs]uint32
	for i := 0; i < numHashFuncs; i++ {
		// double hashing: a + i*c mod n (Kirsch-Mitzenmacher)
		pos[i] = (a + uint32(i)*c) % b.n
	}
	return pos
}

// Add sets the bits for key.
func (b *BloomFilter) Add(key string) {
	for _, p := range b.positions(key) {
		b.bits[p/64] |= 1 << (p % 64)
	}
}

// MayContain reports whether key could be present. False positives are
// possible; false negatives are not.
func (b *BloomFilter) MayContain(key string) bool {
	for _, p := range b.positions(key) {
		if b.bits[p/64]&(1<<(p%64)) == 0 {
			return false
		}
	}
	return true
}

// PopCount returns the number of set bits, useful for estimating fill
// ratio before deciding whether to rebuild with more capacity.
func (b *BloomFilter) PopCount() int {
	count := 0
	for _, w := range b.bits {
		count += bits.OnesCount64(w)
	}
	return count
}
