package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"entitystore.dev/entity"
	"entitystore.dev/registry"
)

// HeadRow is the in-process shape of a head_rows record (spec.md §3 "Head
// Row").
type HeadRow struct {
	InternalID      uint64
	HeadRevisionID  int64
	Flags           entity.HeadFlags
	RedirectsTo     uint64
	HasRedirectsTo  bool
}

// HistoryEntry is one row of a get_history response, newest first.
type HistoryEntry struct {
	RevisionID int64     `json:"revision_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Index is the pgx-backed Metadata Index. It implements registry.Registry
// directly since spec.md §4.C notes this component physically owns the
// mapping table the ID Registry describes.
type Index struct {
	db  *DB
	gen *registry.Generator
}

// NewIndex wires a DB connection to an internal-ID generator.
func NewIndex(db *DB, gen *registry.Generator) *Index {
	return &Index{db: db, gen: gen}
}

var _ registry.Registry = (*Index)(nil)

// Resolve implements registry.Registry.
func (ix *Index) Resolve(ctx context.Context, externalID string) (uint64, bool, error) {
	var internalID uint64
	err := ix.db.queryRow(ctx, `SELECT internal_id FROM id_registry WHERE external_id = $1`, externalID).Scan(&internalID)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, entity.IOError("resolve external id", err)
	}
	return internalID, true, nil
}

// ResolveExternalID is the reverse of Resolve: it looks up the external
// ID a given internal key was registered under, used by the Turtle
// serializer to turn incoming-redirect and referenced-entity internal
// IDs back into the ids emitted in wd: URIs.
func (ix *Index) ResolveExternalID(ctx context.Context, internalID uint64) (string, bool, error) {
	var externalID string
	err := ix.db.queryRow(ctx, `SELECT external_id FROM id_registry WHERE internal_id = $1`, internalID).Scan(&externalID)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, entity.IOError("resolve internal id", err)
	}
	return externalID, true, nil
}

// Register implements registry.Registry. Concurrent registrations of the
// same external ID are serialised by the table's primary key: the loser's
// INSERT fails its uniqueness check and the method falls back to reading
// the winner's row, per spec.md §4.A.
func (ix *Index) Register(ctx context.Context, externalID string) (uint64, error) {
	internalID, err := ix.gen.NextID()
	if err != nil {
		return 0, entity.IOError("allocate internal id", err)
	}

	_, err = ix.db.exec(ctx, `INSERT INTO id_registry (external_id, internal_id) VALUES ($1, $2) ON CONFLICT (external_id) DO NOTHING`, externalID, internalID)
	if err != nil {
		return 0, entity.IOError("register external id", err)
	}

	winner, ok, err := ix.Resolve(ctx, externalID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, entity.IOError("register external id", fmt.Errorf("no mapping found for %s after insert", externalID))
	}
	return winner, nil
}

// GetHead returns the head row for internalID, or found=false if none
// exists yet.
func (ix *Index) GetHead(ctx context.Context, internalID uint64) (HeadRow, bool, error) {
	var row HeadRow
	var redirectsTo *int64
	row.InternalID = internalID

	err := ix.db.queryRow(ctx, `SELECT head_revision_id, is_semi_protected, is_locked, is_archived,
			is_dangling, is_mass_edit_protected, is_deleted, is_redirect, redirects_to
		FROM head_rows WHERE internal_id = $1`, internalID).Scan(
		&row.HeadRevisionID, &row.Flags.IsSemiProtected, &row.Flags.IsLocked, &row.Flags.IsArchived,
		&row.Flags.IsDangling, &row.Flags.IsMassEditProtected, &row.Flags.IsDeleted, &row.Flags.IsRedirect,
		&redirectsTo)
	if err == pgx.ErrNoRows {
		return HeadRow{}, false, nil
	}
	if err != nil {
		return HeadRow{}, false, entity.IOError("get head", err)
	}
	if redirectsTo != nil {
		row.RedirectsTo = uint64(*redirectsTo)
		row.HasRedirectsTo = true
	}
	return row, true, nil
}

// InsertRevision inserts a revision-list row. Idempotent per spec.md §4.C:
// a retry that reaches this step after a previous attempt already wrote
// the same (internal_id, revision_id) pair is a no-op, not a conflict.
func (ix *Index) InsertRevision(ctx context.Context, internalID uint64, revisionID int64, createdAt time.Time, isMassEdit bool, editType entity.EditType) error {
	_, err := ix.db.exec(ctx, `INSERT INTO revision_list (internal_id, revision_id, created_at, is_mass_edit, edit_type)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (internal_id, revision_id) DO NOTHING`,
		internalID, revisionID, createdAt, isMassEdit, string(editType))
	if err != nil {
		return entity.IOError("insert revision", err)
	}
	return nil
}

// InsertHeadWithStatus creates the first head row for a brand-new entity.
// is_deleted is always inserted false: a brand-new entity can never already
// be hard-deleted (spec.md §3 invariant 3). Returns entity.Conflict if a
// concurrent writer already created the row (spec.md §4.E step 10).
func (ix *Index) InsertHeadWithStatus(ctx context.Context, internalID uint64, revisionID int64, flags entity.HeadFlags) error {
	n, err := ix.db.exec(ctx, `INSERT INTO head_rows (internal_id, head_revision_id, is_semi_protected, is_locked,
			is_archived, is_dangling, is_mass_edit_protected, is_deleted, is_redirect, redirects_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, NULL)
		ON CONFLICT (internal_id) DO NOTHING`,
		internalID, revisionID, flags.IsSemiProtected, flags.IsLocked, flags.IsArchived,
		flags.IsDangling, flags.IsMassEditProtected, flags.IsRedirect)
	if err != nil {
		return entity.IOError("insert head", err)
	}
	if n == 0 {
		return entity.Conflict("head row already exists")
	}
	return nil
}

// CASUpdateHead is the linearisation point of a write (spec.md §5): it
// advances the head only if the currently-stored head_revision_id still
// matches expectedHead. is_deleted is deliberately left untouched here: per
// spec.md §3 invariant 3, head_rows.is_deleted only ever flips via
// HardDeleteEntity, even when this write's own revision carries a
// soft-delete flag.
func (ix *Index) CASUpdateHead(ctx context.Context, internalID uint64, expectedHead, newHead int64, flags entity.HeadFlags) (bool, error) {
	n, err := ix.db.exec(ctx, `UPDATE head_rows SET head_revision_id = $1, is_semi_protected = $2, is_locked = $3,
			is_archived = $4, is_dangling = $5, is_mass_edit_protected = $6, is_redirect = $7
		WHERE internal_id = $8 AND head_revision_id = $9`,
		newHead, flags.IsSemiProtected, flags.IsLocked, flags.IsArchived, flags.IsDangling,
		flags.IsMassEditProtected, flags.IsRedirect, internalID, expectedHead)
	if err != nil {
		return false, entity.IOError("cas update head", err)
	}
	return n == 1, nil
}

// HardDeleteEntity sets is_deleted permanently and advances the head to
// the deletion revision (spec.md §4.F "Hard delete").
func (ix *Index) HardDeleteEntity(ctx context.Context, internalID uint64, newHead int64) error {
	_, err := ix.db.exec(ctx, `UPDATE head_rows SET is_deleted = true, head_revision_id = $1 WHERE internal_id = $2`,
		newHead, internalID)
	if err != nil {
		return entity.IOError("hard delete entity", err)
	}
	return nil
}

// CreateRedirectEdge inserts a redirect-graph edge. Returns
// entity.Conflict on the (from,to) uniqueness violation.
func (ix *Index) CreateRedirectEdge(ctx context.Context, from, to uint64, createdBy string) error {
	n, err := ix.db.exec(ctx, `INSERT INTO redirect_edges (from_internal_id, to_internal_id, created_at, created_by)
		VALUES ($1, $2, $3, $4) ON CONFLICT (from_internal_id, to_internal_id) DO NOTHING`,
		from, to, time.Now().UTC(), createdBy)
	if err != nil {
		return entity.IOError("create redirect edge", err)
	}
	if n == 0 {
		return entity.Conflict("redirect edge already exists")
	}
	return nil
}

// SetRedirectTarget points from's head row at to, or clears it when to is
// nil (revert-redirect).
func (ix *Index) SetRedirectTarget(ctx context.Context, from uint64, to *uint64) error {
	var toArg any
	if to != nil {
		toArg = int64(*to)
	}
	_, err := ix.db.exec(ctx, `UPDATE head_rows SET redirects_to = $1 WHERE internal_id = $2`, toArg, from)
	if err != nil {
		return entity.IOError("set redirect target", err)
	}
	return nil
}

// RedirectEdge is the bookkeeping spec.md §3 already stores on a redirect
// edge row, surfaced here so a reader of the "from" side doesn't need a
// separate get_history call to see who created it and when.
type RedirectEdge struct {
	CreatedBy string
	CreatedAt time.Time
}

// GetRedirectEdge returns the created_by/created_at of the redirect edge
// starting at from, if one exists.
func (ix *Index) GetRedirectEdge(ctx context.Context, from uint64) (RedirectEdge, bool, error) {
	row := ix.db.queryRow(ctx, `SELECT created_by, created_at FROM redirect_edges WHERE from_internal_id = $1`, from)
	var edge RedirectEdge
	if err := row.Scan(&edge.CreatedBy, &edge.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return RedirectEdge{}, false, nil
		}
		return RedirectEdge{}, false, entity.IOError("get redirect edge", err)
	}
	return edge, true, nil
}

// GetIncomingRedirects returns every internal ID redirecting to target,
// consumed by the Turtle serializer's incoming-redirect block.
func (ix *Index) GetIncomingRedirects(ctx context.Context, target uint64) ([]uint64, error) {
	rows, err := ix.db.query(ctx, `SELECT from_internal_id FROM redirect_edges WHERE to_internal_id = $1`, target)
	if err != nil {
		return nil, entity.IOError("get incoming redirects", err)
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, entity.IOError("scan incoming redirect", err)
		}
		out = append(out, uint64(id))
	}
	return out, rows.Err()
}

// GetHistory returns the revision list for internalID, newest first.
func (ix *Index) GetHistory(ctx context.Context, internalID uint64) ([]HistoryEntry, error) {
	rows, err := ix.db.query(ctx, `SELECT revision_id, created_at FROM revision_list
		WHERE internal_id = $1 ORDER BY created_at DESC`, internalID)
	if err != nil {
		return nil, entity.IOError("get history", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.RevisionID, &h.CreatedAt); err != nil {
			return nil, entity.IOError("scan history entry", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListCursor identifies a row position for keyset pagination over
// (head_revision_id, internal_id) — the pair apiserver base64-encodes
// into the opaque `cursor` query parameter it hands back to callers.
type ListCursor struct {
	HeadRevisionID int64
	InternalID     uint64
}

// ListedEntity is one row of a List* result: the internal id plus the
// head_revision_id the keyset ordering is paginated on.
type ListedEntity struct {
	InternalID     uint64
	HeadRevisionID int64
}

// ListByStatus scans head rows for a named boolean flag set true, used by
// the `/entities?status=` operator endpoint. status must be one of
// "locked", "semi_protected", "archived", "dangling". Rows are returned in
// (head_revision_id, internal_id) order; passing the cursor of the last
// row seen as after resumes from the following row. Callers request
// limit+1 rows of their own accord by inspecting len(result) to learn
// whether another page follows.
func (ix *Index) ListByStatus(ctx context.Context, status string, limit int, after *ListCursor) ([]ListedEntity, error) {
	column, ok := statusColumns[status]
	if !ok {
		return nil, entity.BadRequest(fmt.Sprintf("unknown status filter %q", status))
	}
	query := fmt.Sprintf(`SELECT internal_id, head_revision_id FROM head_rows WHERE %s = true`, column)
	args := []any{}
	if after != nil {
		query += fmt.Sprintf(` AND (head_revision_id, internal_id) > ($%d, $%d)`, len(args)+1, len(args)+2)
		args = append(args, after.HeadRevisionID, int64(after.InternalID))
	}
	query += fmt.Sprintf(` ORDER BY head_revision_id, internal_id LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := ix.db.query(ctx, query, args...)
	if err != nil {
		return nil, entity.IOError("list by status", err)
	}
	defer rows.Close()
	return scanListedEntities(rows)
}

var statusColumns = map[string]string{
	"locked":         "is_locked",
	"semi_protected": "is_semi_protected",
	"archived":       "is_archived",
	"dangling":       "is_dangling",
}

// ListByEditType scans the revision list for entities with at least one
// revision carrying editType, used by the `/entities?edit_type=` operator
// endpoint. An entity created with one edit_type and later updated with
// another appears under both filters, since every revision it ever wrote
// is a candidate match, not only its current head. Rows are returned in
// (head_revision_id, internal_id) order for the same keyset pagination
// ListByStatus uses.
func (ix *Index) ListByEditType(ctx context.Context, editType entity.EditType, limit int, after *ListCursor) ([]ListedEntity, error) {
	query := `SELECT DISTINCT r.internal_id, h.head_revision_id FROM revision_list r
		JOIN head_rows h ON h.internal_id = r.internal_id
		WHERE r.edit_type = $1`
	args := []any{string(editType)}
	if after != nil {
		query += fmt.Sprintf(` AND (h.head_revision_id, h.internal_id) > ($%d, $%d)`, len(args)+1, len(args)+2)
		args = append(args, after.HeadRevisionID, int64(after.InternalID))
	}
	query += fmt.Sprintf(` ORDER BY h.head_revision_id, h.internal_id LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := ix.db.query(ctx, query, args...)
	if err != nil {
		return nil, entity.IOError("list by edit type", err)
	}
	defer rows.Close()
	return scanListedEntities(rows)
}

func scanListedEntities(rows pgx.Rows) ([]ListedEntity, error) {
	var out []ListedEntity
	for rows.Next() {
		var internalID, headRevisionID int64
		if err := rows.Scan(&internalID, &headRevisionID); err != nil {
			return nil, entity.IOError("scan listed entity", err)
		}
		out = append(out, ListedEntity{InternalID: uint64(internalID), HeadRevisionID: headRevisionID})
	}
	return out, rows.Err()
}
