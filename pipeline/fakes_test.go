package pipeline

import (
	"context"
	"sync"
	"time"

	"entitystore.dev/entity"
	"entitystore.dev/metadata"
)

// fakeRegistry is a minimal in-memory Registry used only by this
// package's tests; the production implementation lives in metadata.Index.
type fakeRegistry struct {
	mu   sync.Mutex
	next uint64
	ids  map[string]uint64
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{ids: make(map[string]uint64)}
}

func (f *fakeRegistry) Resolve(_ context.Context, externalID string) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.ids[externalID]
	return id, ok, nil
}

func (f *fakeRegistry) Register(_ context.Context, externalID string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.ids[externalID]; ok {
		return id, nil
	}
	f.next++
	f.ids[externalID] = f.next
	return f.next, nil
}

// fakeMetadataIndex is a minimal in-memory MetadataIndex used only by
// this package's tests.
type fakeMetadataIndex struct {
	mu        sync.Mutex
	heads     map[uint64]metadata.HeadRow
	revisions map[uint64][]metadata.HistoryEntry
	redirects map[uint64][]uint64
}

func newFakeMetadataIndex() *fakeMetadataIndex {
	return &fakeMetadataIndex{
		heads:     make(map[uint64]metadata.HeadRow),
		revisions: make(map[uint64][]metadata.HistoryEntry),
		redirects: make(map[uint64][]uint64),
	}
}

func (f *fakeMetadataIndex) GetHead(_ context.Context, internalID uint64) (metadata.HeadRow, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.heads[internalID]
	return row, ok, nil
}

func (f *fakeMetadataIndex) InsertRevision(_ context.Context, internalID uint64, revisionID int64, createdAt time.Time, isMassEdit bool, editType entity.EditType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.revisions[internalID] {
		if r.RevisionID == revisionID {
			return nil
		}
	}
	f.revisions[internalID] = append(f.revisions[internalID], metadata.HistoryEntry{RevisionID: revisionID, CreatedAt: createdAt})
	return nil
}

// InsertHeadWithStatus always inserts is_deleted=false: a brand-new entity
// can never already be hard-deleted (spec.md §3 invariant 3).
func (f *fakeMetadataIndex) InsertHeadWithStatus(_ context.Context, internalID uint64, revisionID int64, flags entity.HeadFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.heads[internalID]; ok {
		return entity.Conflict("head row already exists")
	}
	flags.IsDeleted = false
	f.heads[internalID] = metadata.HeadRow{InternalID: internalID, HeadRevisionID: revisionID, Flags: flags}
	return nil
}

// CASUpdateHead leaves is_deleted untouched: per spec.md §3 invariant 3 it
// only ever flips via HardDeleteEntity, even for a soft-delete revision
// whose own flags carry is_deleted=true.
func (f *fakeMetadataIndex) CASUpdateHead(_ context.Context, internalID uint64, expectedHead, newHead int64, flags entity.HeadFlags) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.heads[internalID]
	if !ok || row.HeadRevisionID != expectedHead {
		return false, nil
	}
	wasDeleted := row.Flags.IsDeleted
	row.HeadRevisionID = newHead
	row.Flags = flags
	row.Flags.IsDeleted = wasDeleted
	f.heads[internalID] = row
	return true, nil
}

func (f *fakeMetadataIndex) HardDeleteEntity(_ context.Context, internalID uint64, newHead int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.heads[internalID]
	row.Flags.IsDeleted = true
	row.HeadRevisionID = newHead
	f.heads[internalID] = row
	return nil
}

func (f *fakeMetadataIndex) CreateRedirectEdge(_ context.Context, from, to uint64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.redirects[from] {
		if t == to {
			return entity.Conflict("redirect edge already exists")
		}
	}
	f.redirects[from] = append(f.redirects[from], to)
	return nil
}

func (f *fakeMetadataIndex) SetRedirectTarget(_ context.Context, from uint64, to *uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.heads[from]
	if to == nil {
		row.HasRedirectsTo = false
		row.RedirectsTo = 0
	} else {
		row.HasRedirectsTo = true
		row.RedirectsTo = *to
	}
	f.heads[from] = row
	return nil
}

func (f *fakeMetadataIndex) GetIncomingRedirects(_ context.Context, target uint64) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uint64
	for from, tos := range f.redirects {
		for _, to := range tos {
			if to == target {
				out = append(out, from)
			}
		}
	}
	return out, nil
}

func (f *fakeMetadataIndex) GetHistory(_ context.Context, internalID uint64) ([]metadata.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]metadata.HistoryEntry(nil), f.revisions[internalID]...)
	return out, nil
}

func (f *fakeMetadataIndex) ListByStatus(_ context.Context, status string, limit int, after *metadata.ListCursor) ([]metadata.ListedEntity, error) {
	return nil, nil
}

func (f *fakeMetadataIndex) ListByEditType(_ context.Context, editType entity.EditType, limit int, after *metadata.ListCursor) ([]metadata.ListedEntity, error) {
	return nil, nil
}
