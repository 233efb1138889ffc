package rdf

import "sync"

// DedupeBag is a lossy hash-bag tracking which (namespace, hash) pairs
// have already been emitted, used to avoid writing the same wdv: value
// node block twice (spec.md §4.G "Deduplication"). It evicts on
// collision rather than growing unbounded: false negatives (reporting a
// hash unseen when it was actually seen, causing a harmless duplicate
// emission) are acceptable; false positives are not.
type DedupeBag struct {
	mu     sync.Mutex
	cutoff int
	bag    map[string]string
}

// NewDedupeBag returns a DedupeBag keyed on the first cutoff hex
// characters of each hash. cutoff<=0 falls back to the spec's default of
// 5.
func NewDedupeBag(cutoff int) *DedupeBag {
	if cutoff <= 0 {
		cutoff = 5
	}
	return &DedupeBag{cutoff: cutoff, bag: make(map[string]string)}
}

// AlreadySeen reports whether (namespace, hash) was seen before. It
// always records hash against the truncated key before returning, so a
// collision evicts the previous occupant.
func (b *DedupeBag) AlreadySeen(hash, namespace string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.cutoff
	if n > len(hash) {
		n = len(hash)
	}
	key := namespace + hash[:n]

	if stored, ok := b.bag[key]; ok && stored == hash {
		return true
	}
	b.bag[key] = hash
	return false
}
