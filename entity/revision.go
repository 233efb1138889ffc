package entity

import "time"

// EditType enumerates the classifications spec.md §6 "Edit-type
// enumeration" lists. It is a free-form string rather than a closed Go
// enum because the source enumeration explicitly includes open-ended
// families (cleanup-*, migration-*) and the unspecified empty string.
type EditType string

const (
	EditBotImport               EditType = "bot-import"
	EditBotCleanup              EditType = "bot-cleanup"
	EditBotMerge                EditType = "bot-merge"
	EditBotSplit                EditType = "bot-split"
	EditManualCreate            EditType = "manual-create"
	EditManualUpdate            EditType = "manual-update"
	EditManualCorrection        EditType = "manual-correction"
	EditSoftDelete              EditType = "soft-delete"
	EditHardDelete              EditType = "hard-delete"
	EditUndelete                EditType = "undelete"
	EditRedirectCreate          EditType = "redirect-create"
	EditRedirectRevert          EditType = "redirect-revert"
	EditLockAdded               EditType = "lock-added"
	EditLockRemoved             EditType = "lock-removed"
	EditSemiProtectionAdded     EditType = "semi-protection-added"
	EditSemiProtectionRemoved   EditType = "semi-protection-removed"
	EditArchiveAdded            EditType = "archive-added"
	EditArchiveRemoved          EditType = "archive-removed"
	EditMassProtectionAdded     EditType = "mass-protection-added"
	EditMassProtectionRemoved   EditType = "mass-protection-removed"
	EditUnspecified             EditType = ""
)

// PublicationState tags a stored revision blob as not-yet-referenced or
// referenced/referenceable by a head pointer (spec.md §4.B).
type PublicationState string

const (
	Pending   PublicationState = "pending"
	Published PublicationState = "published"
)

// RequestFlags are the caller-supplied protection/classification bits that
// accompany a write (spec.md §6 "Create request fields", §4.D).
type RequestFlags struct {
	IsMassEdit             bool
	EditType               EditType
	IsSemiProtected        bool
	IsLocked               bool
	IsArchived             bool
	IsDangling             bool
	IsMassEditProtected    bool
	IsNotAutoconfirmedUser bool
}

// HeadFlags is the flag snapshot carried on the head row (spec.md §3
// "Head Row"), reused both as the "current" side of a protection check and
// as the flags written alongside a new head.
type HeadFlags struct {
	IsSemiProtected     bool `json:"is_semi_protected"`
	IsLocked            bool `json:"is_locked"`
	IsArchived          bool `json:"is_archived"`
	IsDangling          bool `json:"is_dangling"`
	IsMassEditProtected bool `json:"is_mass_edit_protected"`
	IsDeleted           bool `json:"is_deleted"`
	IsRedirect          bool `json:"is_redirect"`
}

// WithRedirect returns a copy of f with IsRedirect set, used when a
// redirect is created or reverted on top of an existing flag snapshot
// rather than a fresh request.
func (f HeadFlags) WithRedirect(isRedirect bool) HeadFlags {
	f.IsRedirect = isRedirect
	return f
}

// ToHeadFlags builds the head-row flag snapshot a successful write should
// record, carrying forward every protection bit from the request and
// taking is_deleted/is_redirect from its arguments.
func (f RequestFlags) ToHeadFlags(isDeleted, isRedirect bool) HeadFlags {
	return HeadFlags{
		IsSemiProtected:     f.IsSemiProtected,
		IsLocked:            f.IsLocked,
		IsArchived:          f.IsArchived,
		IsDangling:          f.IsDangling,
		IsMassEditProtected: f.IsMassEditProtected,
		IsDeleted:           isDeleted,
		IsRedirect:          isRedirect,
	}
}

// Revision is the full record stored in the Blob Store (spec.md §3
// "Revision Record (stored in B)").
type Revision struct {
	SchemaVersion int        `json:"schema_version"`
	RevisionID    int64      `json:"revision_id"`
	CreatedAt     time.Time  `json:"created_at"`
	CreatedBy     string     `json:"created_by"`
	IsMassEdit    bool       `json:"is_mass_edit"`
	EditType      EditType   `json:"edit_type"`
	EntityType    EntityType `json:"entity_type"`
	HeadFlags
	Entity       Document `json:"entity"`
	ContentHash  uint64   `json:"content_hash"`
	RedirectsTo  string   `json:"redirects_to,omitempty"`
}

// CurrentSchemaVersion is stamped on every revision this build produces.
const CurrentSchemaVersion = 1
