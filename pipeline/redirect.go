package pipeline

import (
	"context"

	"entitystore.dev/entity"
	"entitystore.dev/protection"
)

// CreateRedirect implements spec.md §4.F "Create redirect".
func (p *Pipeline) CreateRedirect(ctx context.Context, from, to, createdBy string) (*WriteResult, error) {
	if from == to {
		return nil, entity.BadRequest("cannot redirect an entity to itself")
	}

	fromID, ok, err := p.Registry.Resolve(ctx, from)
	if err != nil {
		return nil, entity.IOError("resolve redirect source", err)
	}
	if !ok {
		return nil, entity.NotFound("redirect source " + from + " not registered")
	}
	toID, ok, err := p.Registry.Resolve(ctx, to)
	if err != nil {
		return nil, entity.IOError("resolve redirect target", err)
	}
	if !ok {
		return nil, entity.NotFound("redirect target " + to + " not registered")
	}

	fromHead, ok, err := p.Meta.GetHead(ctx, fromID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, entity.NotFound(from + " has no head revision")
	}
	if fromHead.Flags.IsDeleted {
		return nil, entity.LockedLike(from + " is deleted")
	}
	if fromHead.HasRedirectsTo {
		return nil, entity.Conflict(from + " already redirects somewhere")
	}

	toHead, ok, err := p.Meta.GetHead(ctx, toID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, entity.NotFound(to + " has no head revision")
	}
	if decision := protection.AdmitRedirectTarget(toHead.Flags); !decision.Allowed {
		return nil, entity.LockedLike(decision.Reason)
	}

	res, err := p.commit(ctx, commitArgs{
		externalID:   from,
		internalID:   fromID,
		expectedHead: fromHead.HeadRevisionID,
		doc:          entity.EmptyRedirectBody(from),
		flags:        fromHead.Flags.WithRedirect(true),
		editType:     entity.EditRedirectCreate,
		createdBy:    createdBy,
		redirectsTo:  to,
	})
	if err != nil {
		return nil, err
	}

	if err := p.Meta.CreateRedirectEdge(ctx, fromID, toID, createdBy); err != nil {
		return nil, err
	}
	if err := p.Meta.SetRedirectTarget(ctx, fromID, &toID); err != nil {
		return nil, err
	}
	return res, nil
}

// RevertRedirect implements spec.md §4.F "Revert redirect".
func (p *Pipeline) RevertRedirect(ctx context.Context, externalID string, targetRevisionID int64) (*WriteResult, error) {
	internalID, ok, err := p.Registry.Resolve(ctx, externalID)
	if err != nil {
		return nil, entity.IOError("resolve entity", err)
	}
	if !ok {
		return nil, entity.NotFound(externalID + " not registered")
	}

	head, ok, err := p.Meta.GetHead(ctx, internalID)
	if err != nil {
		return nil, err
	}
	if !ok || !head.HasRedirectsTo {
		return nil, entity.NotFound(externalID + " is not a redirect")
	}
	if head.Flags.IsDeleted {
		return nil, entity.LockedLike(externalID + " is deleted")
	}
	if head.Flags.IsLocked {
		return nil, entity.LockedLike(externalID + " is locked")
	}
	if head.Flags.IsArchived {
		return nil, entity.LockedLike(externalID + " is archived")
	}

	historical, err := p.Blobs.Get(ctx, externalID, targetRevisionID)
	if err != nil {
		return nil, err
	}

	res, err := p.commit(ctx, commitArgs{
		externalID:   externalID,
		internalID:   internalID,
		expectedHead: head.HeadRevisionID,
		doc:          historical.Entity,
		flags:        head.Flags.WithRedirect(false),
		editType:     entity.EditRedirectRevert,
	})
	if err != nil {
		return nil, err
	}

	if err := p.Meta.SetRedirectTarget(ctx, internalID, nil); err != nil {
		return nil, err
	}
	return res, nil
}
