package registry

import "context"

// Registry is the bidirectional external-id↔internal-id mapping spec.md
// §4.A describes. The metadata package owns the physical table (spec.md
// §4.C: "this component physically owns the mapping table") and provides
// the concrete implementation; this interface lets the pipeline package
// depend on the narrow contract instead of the full metadata index.
type Registry interface {
	// Resolve returns the internal ID for externalID, or ok=false if no
	// mapping exists yet.
	Resolve(ctx context.Context, externalID string) (internalID uint64, ok bool, err error)

	// Register allocates a fresh internal ID for externalID and inserts
	// the mapping. Two concurrent Register calls for the same externalID
	// must result in exactly one mapping; the loser's call returns the
	// winner's internalID rather than an error (spec.md §4.A: "the loser
	// reads the winner's value").
	Register(ctx context.Context, externalID string) (internalID uint64, err error)
}
