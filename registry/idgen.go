// Package registry implements the ID Registry (spec.md §4.A): the
// bidirectional mapping between external entity IDs and opaque internal
// 64-bit keys, and the time-ordered generator that allocates new internal
// keys.
package registry

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// Generator allocates time-ordered 64-bit internal IDs. spec.md §3
// recommends "a time-ordered 64-bit key (monotonic-ish, lexicographically
// sortable time-ordered ID such as a ULID-Flake)"; this folds a standard
// ULID down to 64 bits by keeping its 48-bit millisecond timestamp in the
// high bits and the low 16 bits of its monotonic entropy in the low bits,
// giving strict ordering for IDs minted in different milliseconds and
// near-certain ordering for IDs minted in the same millisecond (ties are
// broken by allocation order until the low 16 bits, which start from a
// random value each millisecond, wrap — acceptable since spec.md only
// requires "monotonic-ish").
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGenerator creates a Generator seeded from crypto/rand, matching the
// entropy source oklog/ulid recommends for MonotonicEntropy, with an
// increment of 1 so IDs minted in the same millisecond step by one.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 1)}
}

// NextID mints a fresh internal ID. Safe for concurrent use.
func (g *Generator) NextID() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), g.entropy)
	if err != nil {
		return 0, err
	}

	var hi uint64
	for _, b := range id[0:6] { // 48-bit millisecond timestamp
		hi = hi<<8 | uint64(b)
	}
	lo := uint64(id[14])<<8 | uint64(id[15]) // low 16 bits of entropy

	return hi<<16 | lo, nil
}
