package geoloc

import "github.com/bits-and-blooms/bloom/v3"

// FeatureFilter is a set of tokens. It selects which features a model load
// keeps and which tokens training ignores. *Index and *Vocabulary satisfy it.
type FeatureFilter interface {
	Contains(word string) bool
}

// BloomFilter is an approximate FeatureFilter. A false positive only loads a
// feature the documents never use, so classification results are unchanged.
type BloomFilter struct {
	bf *bloom.BloomFilter
}

// NewBloomFilter sizes a filter for n tokens at the given false positive rate.
func NewBloomFilter(n uint, rate float64) *BloomFilter {
	if n == 0 {
		n = 1
	}
	return &BloomFilter{bf: bloom.NewWithEstimates(n, rate)}
}

// Add inserts word.
func (b *BloomFilter) Add(word string) { b.bf.AddString(word) }

// Contains reports whether word may have been added.
func (b *BloomFilter) Contains(word string) bool { return b.bf.TestString(word) }
