// Package blobstore implements the Blob Store (spec.md §4.B): content-
// addressed storage for full revision documents, keyed by entity and
// revision ID, with a publication_state tag distinguishing a blob that has
// been written but not yet referenced by any head pointer from one a
// reader may safely serve.
package blobstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"entitystore.dev/entity"
)

// Store is the narrow contract the write pipeline and read path need from
// blob storage. The S3-backed implementation in this package and the
// in-memory fake used by tests both satisfy it.
type Store interface {
	// WritePending stores rev under its (EntityID-derived key, RevisionID)
	// with publication_state=pending. Called before any metadata row
	// referencing the revision exists (spec.md §4.E step 8).
	WritePending(ctx context.Context, externalID string, rev *entity.Revision) error

	// MarkPublished flips the publication_state metadata to published.
	// Called only after the metadata CAS that makes the revision the head
	// has succeeded (spec.md §4.E step 11).
	MarkPublished(ctx context.Context, externalID string, revisionID int64) error

	// Get fetches a stored revision regardless of its publication state;
	// the metadata index, not the blob store, is authoritative for
	// whether a revision is safe to serve to a reader.
	Get(ctx context.Context, externalID string, revisionID int64) (*entity.Revision, error)
}

// PendingObject describes one blob still tagged publication_state=pending,
// as surfaced by ListPendingOlderThan for the orphan reaper.
type PendingObject struct {
	ExternalID   string
	RevisionID   int64
	LastModified time.Time
}

// Reaper is the subset of Store the orphan blob reaper needs: the ability
// to enumerate long-pending blobs and delete the ones metadata confirms
// no head ever came to reference (spec.md §4.E "Failure recovery").
type Reaper interface {
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]PendingObject, error)
	Delete(ctx context.Context, externalID string, revisionID int64) error
}

// ParseKey recovers the (externalID, revisionID) pair Key encoded, for
// callers that only have the object key (e.g. from a bucket listing).
func ParseKey(key string) (externalID string, revisionID int64, ok bool) {
	idx := strings.LastIndex(key, "/r")
	if idx < 0 || !strings.HasSuffix(key, ".json") {
		return "", 0, false
	}
	externalID = key[:idx]
	revPart := key[idx+2 : len(key)-len(".json")]
	rev, err := strconv.ParseInt(revPart, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return externalID, rev, true
}

// Key builds the storage key a revision is written under. Exported so
// callers needing to reason about object layout (e.g. the orphan reaper)
// don't have to duplicate the convention.
func Key(externalID string, revisionID int64) string {
	return fmt.Sprintf("%s/r%d.json", externalID, revisionID)
}
