package metadata

import "context"

// schemaDDL creates the four tables of the Metadata Index: the id_registry
// mapping table §4.A and §4.C assign to this component, plus the head,
// revision-list and redirect-edge tables spec.md §3 defines. Safe to run
// repeatedly.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS id_registry (
	external_id TEXT PRIMARY KEY,
	internal_id BIGINT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS head_rows (
	internal_id BIGINT PRIMARY KEY,
	head_revision_id BIGINT NOT NULL,
	is_semi_protected BOOLEAN NOT NULL DEFAULT false,
	is_locked BOOLEAN NOT NULL DEFAULT false,
	is_archived BOOLEAN NOT NULL DEFAULT false,
	is_dangling BOOLEAN NOT NULL DEFAULT false,
	is_mass_edit_protected BOOLEAN NOT NULL DEFAULT false,
	is_deleted BOOLEAN NOT NULL DEFAULT false,
	is_redirect BOOLEAN NOT NULL DEFAULT false,
	redirects_to BIGINT
);

CREATE TABLE IF NOT EXISTS revision_list (
	internal_id BIGINT NOT NULL,
	revision_id BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	is_mass_edit BOOLEAN NOT NULL DEFAULT false,
	edit_type TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (internal_id, revision_id)
);

CREATE TABLE IF NOT EXISTS redirect_edges (
	id BIGSERIAL PRIMARY KEY,
	from_internal_id BIGINT NOT NULL,
	to_internal_id BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	created_by TEXT NOT NULL,
	UNIQUE (from_internal_id, to_internal_id)
);

CREATE INDEX IF NOT EXISTS idx_redirect_edges_from ON redirect_edges (from_internal_id);
CREATE INDEX IF NOT EXISTS idx_redirect_edges_to ON redirect_edges (to_internal_id);
`

// Migrate applies schemaDDL. Idempotent; safe to call on every process
// start the way the teacher's PGMigrations does for its own tables.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.exec(ctx, schemaDDL)
	return err
}
