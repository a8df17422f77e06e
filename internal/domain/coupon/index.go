package coupon

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomIndex is a probabilistic set of known coupon codes used to reject
// unknown codes without a database round trip. False positives fall
// through to the repository; there are no false negatives.
type BloomIndex struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewBloomIndex sizes the filter for capacity codes at the given false
// positive rate.
func NewBloomIndex(capacity uint, fpr float64) *BloomIndex {
	return &BloomIndex{filter: bloom.NewWithEstimates(capacity, fpr)}
}

// Add inserts codes into the index.
func (i *BloomIndex) Add(codes ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, c := range codes {
		i.filter.AddString(Normalize(c))
	}
}

// MayContain reports whether code may be a known coupon.
func (i *BloomIndex) MayContain(code string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.filter.TestString(Normalize(code))
}
