// Package audit records a best-effort, human-auditable log of every
// successful write the pipeline commits, using GORM against the same
// Postgres instance the pgx-backed metadata index uses for its
// transactional tables. Keeping this on a separate ORM mirrors the
// teacher's own two Postgres access styles: pgx for latency-sensitive
// metadata operations, GORM for the secondary record-keeping table that
// doesn't sit on the write pipeline's critical path.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"entitystore.dev/entity"
)

// EditLog is one row of the edit_logs table: a durable record of what
// changed, when, and under what edit-type classification, independent of
// the revision blob itself.
type EditLog struct {
	gorm.Model
	ExternalID string `gorm:"index"`
	InternalID uint64 `gorm:"index"`
	RevisionID int64
	EditType   string
	IsMassEdit bool
	CreatedBy  string
	Summary    string `gorm:"type:text"`
}

// Recorder appends EditLog rows. A nil *Recorder is valid and turns every
// method into a no-op, so callers that run without an audit database
// configured don't need to special-case it.
type Recorder struct {
	db *gorm.DB
}

// Open connects to Postgres via GORM and migrates the edit_logs table.
func Open(dsn string) (*Recorder, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.AutoMigrate(&EditLog{}); err != nil {
		return nil, fmt.Errorf("migrate audit database: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Record appends one audit row describing a committed write. Failures are
// returned to the caller; the pipeline discards them without logging
// rather than failing the request.
func (r *Recorder) Record(ctx context.Context, externalID string, internalID uint64, rev *entity.Revision) error {
	if r == nil {
		return nil
	}

	summary, err := summarize(rev)
	if err != nil {
		summary = ""
	}

	log := &EditLog{
		ExternalID: externalID,
		InternalID: internalID,
		RevisionID: rev.RevisionID,
		EditType:   string(rev.EditType),
		IsMassEdit: rev.IsMassEdit,
		CreatedBy:  rev.CreatedBy,
		Summary:    summary,
	}
	return r.db.WithContext(ctx).Create(log).Error
}

func summarize(rev *entity.Revision) (string, error) {
	body, err := json.Marshal(struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"created_at"`
		Hash      uint64    `json:"content_hash"`
	}{ID: rev.Entity.ID, CreatedAt: rev.CreatedAt, Hash: rev.ContentHash})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// RecentForEntity returns the most recent audit rows for an external ID,
// newest first, capped at limit.
func (r *Recorder) RecentForEntity(ctx context.Context, externalID string, limit int) ([]EditLog, error) {
	if r == nil {
		return nil, nil
	}
	var logs []EditLog
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).
		Order("created_at DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	return logs, nil
}
