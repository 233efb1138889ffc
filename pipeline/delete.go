package pipeline

import (
	"context"

	"entitystore.dev/entity"
	"entitystore.dev/metadata"
)

// SoftDelete implements spec.md §4.F "Soft delete": a new revision with
// is_deleted=true. The entity stays readable and a later write with
// is_deleted=false undoes it.
func (p *Pipeline) SoftDelete(ctx context.Context, externalID string, createdBy string) (*WriteResult, error) {
	internalID, head, err := p.requireLiveHead(ctx, externalID)
	if err != nil {
		return nil, err
	}

	doc, err := p.currentDocument(ctx, externalID, head)
	if err != nil {
		return nil, err
	}

	return p.commit(ctx, commitArgs{
		externalID:   externalID,
		internalID:   internalID,
		expectedHead: head.HeadRevisionID,
		doc:          doc,
		flags:        headFlagsWithDeleted(head.Flags, true),
		editType:     entity.EditSoftDelete,
		createdBy:    createdBy,
	})
}

// HardDelete implements spec.md §4.F "Hard delete": writes the deletion
// revision exactly as SoftDelete does, then permanently flips the head
// row's is_deleted flag via hard_delete_entity. Undelete is not possible
// after this point.
func (p *Pipeline) HardDelete(ctx context.Context, externalID string, createdBy string) (*WriteResult, error) {
	internalID, head, err := p.requireLiveHead(ctx, externalID)
	if err != nil {
		return nil, err
	}

	doc, err := p.currentDocument(ctx, externalID, head)
	if err != nil {
		return nil, err
	}

	res, err := p.commit(ctx, commitArgs{
		externalID:   externalID,
		internalID:   internalID,
		expectedHead: head.HeadRevisionID,
		doc:          doc,
		flags:        headFlagsWithDeleted(head.Flags, true),
		editType:     entity.EditHardDelete,
		createdBy:    createdBy,
	})
	if err != nil {
		return nil, err
	}

	if err := p.Meta.HardDeleteEntity(ctx, internalID, res.RevisionID); err != nil {
		return nil, err
	}
	return res, nil
}

// requireLiveHead resolves externalID and fetches its head row, rejecting
// unregistered and already-hard-deleted entities.
func (p *Pipeline) requireLiveHead(ctx context.Context, externalID string) (uint64, metadata.HeadRow, error) {
	internalID, ok, err := p.Registry.Resolve(ctx, externalID)
	if err != nil {
		return 0, metadata.HeadRow{}, entity.IOError("resolve entity", err)
	}
	if !ok {
		return 0, metadata.HeadRow{}, entity.NotFound(externalID + " not registered")
	}

	head, ok, err := p.Meta.GetHead(ctx, internalID)
	if err != nil {
		return 0, metadata.HeadRow{}, err
	}
	if !ok {
		return 0, metadata.HeadRow{}, entity.NotFound(externalID + " has no head revision")
	}
	if head.Flags.IsDeleted {
		return 0, metadata.HeadRow{}, entity.Gone(externalID + " has been hard-deleted")
	}
	return internalID, head, nil
}

// currentDocument fetches the head blob's entity body, used as the basis
// for the deletion-marker revision. If the blob itself is unreadable the
// delete still proceeds against an empty body rather than failing outright,
// since the flag flip is the operative change here.
func (p *Pipeline) currentDocument(ctx context.Context, externalID string, head metadata.HeadRow) (entity.Document, error) {
	blob, err := p.Blobs.Get(ctx, externalID, head.HeadRevisionID)
	if err != nil {
		return entity.EmptyRedirectBody(externalID), nil
	}
	return blob.Entity, nil
}

func headFlagsWithDeleted(f entity.HeadFlags, deleted bool) entity.HeadFlags {
	f.IsDeleted = deleted
	return f
}
