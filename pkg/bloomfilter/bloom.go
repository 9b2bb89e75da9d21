// Package bloomfilter is a fixed-size Bloom filter used to reject keys that
// are certainly absent from a larger on-disk set before looking them up.
//
// Contains never returns false for a key that was added. It may return true
// for a key that was not, at roughly the rate the filter was sized for.
package bloomfilter

import (
	"hash/maphash"
	"math"
	"math/bits"
	"sync"
)

var seed = maphash.MakeSeed()

// BloomFilter sizes its bit array as m = -n*ln(p)/ln(2)^2 and uses
// k = m/n*ln(2) probes derived from one 64-bit hash by double hashing.
type BloomFilter struct {
	mu    sync.RWMutex
	words []uint64
	m     uint64
	k     uint64
	count uint
}

// New sizes a filter for n keys at false positive rate p. Out-of-range
// arguments fall back to 1000 keys and 1%.
func New(n uint, p float64) *BloomFilter {
	if n == 0 {
		n = 1000
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}

	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	k := uint64(math.Ceil(float64(m) / float64(n) * math.Ln2))
	return &BloomFilter{
		words: make([]uint64, (m+63)/64),
		m:     m,
		k:     max(k, 1),
	}
}

func (f *BloomFilter) Add(key []byte) {
	h1, h2 := sum(key)

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := uint64(0); i < f.k; i++ {
		pos := (h1 + i*h2) % f.m
		f.words[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

func (f *BloomFilter) Contains(key []byte) bool {
	h1, h2 := sum(key)

	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := uint64(0); i < f.k; i++ {
		pos := (h1 + i*h2) % f.m
		if f.words[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Count is the number of Add calls, duplicates included.
func (f *BloomFilter) Count() uint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// FillRatio is the fraction of bits set. Above about one half the false
// positive rate climbs quickly past the sized rate.
func (f *BloomFilter) FillRatio() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var set int
	for _, w := range f.words {
		set += bits.OnesCount64(w)
	}
	return float64(set) / float64(f.m)
}

func sum(key []byte) (uint64, uint64) {
	h := maphash.Bytes(seed, key)
	// Odd second hash so successive probes never collapse onto one bit.
	return h, bits.RotateLeft64(h, 32) | 1
}
