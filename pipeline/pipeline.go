// Package pipeline implements the Revision Pipeline (spec.md §4.E) and its
// two specialisations, the Redirect & Delete Controller (spec.md §4.F).
// It orchestrates the ID Registry, Blob Store, Metadata Index, and
// Protection Policy Engine packages through narrow interfaces so it never
// depends on their concrete storage backends.
package pipeline

import (
	"context"
	"time"

	"entitystore.dev/entity"
	"entitystore.dev/metadata"
	"entitystore.dev/protection"
)

// Registry is the subset of registry.Registry the pipeline needs.
type Registry interface {
	Resolve(ctx context.Context, externalID string) (internalID uint64, ok bool, err error)
	Register(ctx context.Context, externalID string) (internalID uint64, err error)
}

// BlobStore is the subset of blobstore.Store the pipeline needs.
type BlobStore interface {
	WritePending(ctx context.Context, externalID string, rev *entity.Revision) error
	MarkPublished(ctx context.Context, externalID string, revisionID int64) error
	Get(ctx context.Context, externalID string, revisionID int64) (*entity.Revision, error)
}

// MetadataIndex is the subset of metadata.Index the pipeline needs. It
// reuses metadata.HeadRow and metadata.HistoryEntry directly: those are
// plain data, not a seam the pipeline needs to abstract away.
type MetadataIndex interface {
	GetHead(ctx context.Context, internalID uint64) (metadata.HeadRow, bool, error)
	InsertRevision(ctx context.Context, internalID uint64, revisionID int64, createdAt time.Time, isMassEdit bool, editType entity.EditType) error
	InsertHeadWithStatus(ctx context.Context, internalID uint64, revisionID int64, flags entity.HeadFlags) error
	CASUpdateHead(ctx context.Context, internalID uint64, expectedHead, newHead int64, flags entity.HeadFlags) (bool, error)
	HardDeleteEntity(ctx context.Context, internalID uint64, newHead int64) error
	CreateRedirectEdge(ctx context.Context, from, to uint64, createdBy string) error
	SetRedirectTarget(ctx context.Context, from uint64, to *uint64) error
	GetIncomingRedirects(ctx context.Context, target uint64) ([]uint64, error)
	GetHistory(ctx context.Context, internalID uint64) ([]metadata.HistoryEntry, error)
	ListByStatus(ctx context.Context, status string, limit int, after *metadata.ListCursor) ([]metadata.ListedEntity, error)
	ListByEditType(ctx context.Context, editType entity.EditType, limit int, after *metadata.ListCursor) ([]metadata.ListedEntity, error)
}

// AuditRecorder is the optional best-effort audit sink. A nil AuditRecorder
// field on Pipeline disables auditing entirely.
type AuditRecorder interface {
	Record(ctx context.Context, externalID string, internalID uint64, rev *entity.Revision) error
}

// Pipeline wires the four leaf components into the write algorithm of
// spec.md §4.E.
type Pipeline struct {
	Registry Registry
	Blobs    BlobStore
	Meta     MetadataIndex
	Audit    AuditRecorder // optional
}

// New constructs a Pipeline from its required collaborators.
func New(reg Registry, blobs BlobStore, meta MetadataIndex) *Pipeline {
	return &Pipeline{Registry: reg, Blobs: blobs, Meta: meta}
}

// WriteResult is the outcome of a successful Write call (spec.md §4.E
// contract: "(external_id, new_revision_id, stored_document, stored_flags)").
type WriteResult struct {
	ExternalID string
	RevisionID int64
	Document   entity.Document
	Flags      entity.HeadFlags
	NoopReplay bool // true when idempotency (step 4) short-circuited the write
}

// Write runs the full 12-step algorithm of spec.md §4.E.
func (p *Pipeline) Write(ctx context.Context, externalID string, doc entity.Document, req entity.RequestFlags, createdBy string) (*WriteResult, error) {
	internalID, isNew, err := p.resolveOrRegister(ctx, externalID)
	if err != nil {
		return nil, err
	}

	var head metadata.HeadRow
	if !isNew {
		var hasHead bool
		head, hasHead, err = p.Meta.GetHead(ctx, internalID)
		if err != nil {
			return nil, err
		}
		isNew = !hasHead // mapping existed but head row didn't: treat as first write
	}

	if !isNew && head.Flags.IsDeleted {
		return nil, entity.Gone("entity has been hard-deleted")
	}

	contentHash, err := entity.ContentHash(&doc)
	if err != nil {
		return nil, entity.BadRequest("cannot hash entity document: " + err.Error())
	}

	if !isNew {
		if existing := p.idempotentReplay(ctx, externalID, head, contentHash); existing != nil {
			return existing, nil
		}

		decision := protection.Admit(&head.Flags, req)
		if !decision.Allowed {
			return nil, entity.Forbidden(decision.Reason)
		}
	}

	expectedHead := int64(0)
	if !isNew {
		expectedHead = head.HeadRevisionID
	}

	return p.commit(ctx, commitArgs{
		externalID:   externalID,
		internalID:   internalID,
		isNewEntity:  isNew,
		expectedHead: expectedHead,
		doc:          doc,
		flags:        req.ToHeadFlags(false, false),
		editType:     req.EditType,
		isMassEdit:   req.IsMassEdit,
		contentHash:  contentHash,
		createdBy:    createdBy,
	})
}

// resolveOrRegister implements step 1 of spec.md §4.E. isNew reports
// whether the external ID had no prior mapping at all (a brand-new
// entity, distinct from an existing entity with no head row, which
// cannot normally happen but is handled defensively by the caller
// re-checking GetHead).
func (p *Pipeline) resolveOrRegister(ctx context.Context, externalID string) (internalID uint64, isNew bool, err error) {
	internalID, ok, err := p.Registry.Resolve(ctx, externalID)
	if err != nil {
		return 0, false, entity.IOError("resolve identity", err)
	}
	if ok {
		return internalID, false, nil
	}
	internalID, err = p.Registry.Register(ctx, externalID)
	if err != nil {
		return 0, false, entity.IOError("register identity", err)
	}
	return internalID, true, nil
}

// idempotentReplay implements step 4: if the current head blob's content
// hash matches, the write is a no-op and the existing revision is
// returned unchanged. A blob-read failure is swallowed per spec.md §7's
// local recovery rule; the caller proceeds as if there was no match.
func (p *Pipeline) idempotentReplay(ctx context.Context, externalID string, head metadata.HeadRow, contentHash uint64) *WriteResult {
	blob, err := p.Blobs.Get(ctx, externalID, head.HeadRevisionID)
	if err != nil {
		return nil
	}
	if blob.ContentHash != contentHash {
		return nil
	}
	return &WriteResult{
		ExternalID: externalID,
		RevisionID: head.HeadRevisionID,
		Document:   blob.Entity,
		Flags:      head.Flags,
		NoopReplay: true,
	}
}

// commitArgs bundles the inputs steps 6-11 of spec.md §4.E need, shared by
// Write, CreateRedirect, and the delete controller.
type commitArgs struct {
	externalID   string
	internalID   uint64
	isNewEntity  bool
	expectedHead int64
	doc          entity.Document
	flags        entity.HeadFlags
	editType     entity.EditType
	isMassEdit   bool
	contentHash  uint64
	createdBy    string
	redirectsTo  string // external id; set only when flags.IsRedirect
}

// commit runs steps 6 (allocate revision id) through 11 (mark published)
// of spec.md §4.E. Every pipeline entry point that produces a new
// revision — a standard write, a redirect creation, a redirect revert, or
// a soft/hard delete — funnels through here so the two-phase commit
// discipline has exactly one implementation.
func (p *Pipeline) commit(ctx context.Context, a commitArgs) (*WriteResult, error) {
	newRevID := a.expectedHead + 1

	hash := a.contentHash
	if hash == 0 {
		h, err := entity.ContentHash(&a.doc)
		if err != nil {
			return nil, entity.BadRequest("cannot hash entity document: " + err.Error())
		}
		hash = h
	}

	rev := &entity.Revision{
		SchemaVersion: entity.CurrentSchemaVersion,
		RevisionID:    newRevID,
		CreatedAt:     time.Now().UTC(),
		CreatedBy:     a.createdBy,
		IsMassEdit:    a.isMassEdit,
		EditType:      a.editType,
		EntityType:    a.doc.Type,
		HeadFlags:     a.flags,
		Entity:        a.doc,
		ContentHash:   hash,
		RedirectsTo:   a.redirectsTo,
	}

	if err := p.Blobs.WritePending(ctx, a.externalID, rev); err != nil {
		return nil, entity.IOError("write pending blob", err)
	}

	if err := p.Meta.InsertRevision(ctx, a.internalID, newRevID, rev.CreatedAt, rev.IsMassEdit, rev.EditType); err != nil {
		return nil, err
	}

	if a.isNewEntity {
		if err := p.Meta.InsertHeadWithStatus(ctx, a.internalID, newRevID, rev.HeadFlags); err != nil {
			return nil, err
		}
	} else {
		ok, err := p.Meta.CASUpdateHead(ctx, a.internalID, a.expectedHead, newRevID, rev.HeadFlags)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, entity.Conflict("head advanced by a concurrent writer")
		}
	}

	// Best-effort, never surfaced (spec.md §4.E step 11): the error is
	// discarded here and is not logged.
	_ = p.Blobs.MarkPublished(ctx, a.externalID, newRevID)

	if p.Audit != nil {
		_ = p.Audit.Record(ctx, a.externalID, a.internalID, rev)
	}

	return &WriteResult{
		ExternalID: a.externalID,
		RevisionID: newRevID,
		Document:   a.doc,
		Flags:      rev.HeadFlags,
	}, nil
}
