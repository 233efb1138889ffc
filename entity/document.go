package entity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// EntityType enumerates the two entity kinds the store recognises.
type EntityType string

const (
	TypeItem     EntityType = "item"
	TypeProperty EntityType = "property"
)

// Rank is the reliability tier of a Statement (spec.md §3 "Statement").
type Rank string

const (
	RankNormal     Rank = "normal"
	RankPreferred  Rank = "preferred"
	RankDeprecated Rank = "deprecated"
)

// Snak is a single property-value assertion. It appears as a Statement's
// own mainsnak (folded into Statement directly), as a Qualifier, and as a
// member of a Reference.
type Snak struct {
	Property string `json:"property"`
	Value    Value  `json:"value"`
}

// Qualifier narrows a Statement with an additional property-value pair.
type Qualifier = Snak

// Reference is a caller-supplied provenance record. The core never
// recomputes Hash; it is trusted verbatim (spec.md §3 "Reference").
type Reference struct {
	Hash  string `json:"hash"`
	Snaks []Snak `json:"snaks"`
}

// guidPattern matches "<entity-id>$<UUID>", the required shape of a
// statement GUID (spec.md §3 "Statement").
var guidPattern = regexp.MustCompile(`^[A-Za-z]\d+\$[0-9a-fA-F-]{36}$`)

// Statement is a claim about an entity: a mainsnak (Property/Value),
// optional qualifiers and references, a rank, and a caller-supplied GUID.
type Statement struct {
	Property    string      `json:"property"`
	Value       Value       `json:"value"`
	Rank        Rank        `json:"rank"`
	Qualifiers  []Qualifier `json:"qualifiers,omitempty"`
	References  []Reference `json:"references,omitempty"`
	StatementID string      `json:"statement_id"`
}

// ValidGUID reports whether id has the "<entity-id>$<UUID>" shape.
func ValidGUID(id string) bool { return guidPattern.MatchString(id) }

// Sitelink points an entity at a page on a foreign wiki.
type Sitelink struct {
	Site   string   `json:"site"`
	Title  string   `json:"title"`
	URL    string   `json:"url"`
	Badges []string `json:"badges,omitempty"`
}

// Document is the mapping spec.md §3 "Entity Document" describes. The
// core is opaque to its contents except for ID (must equal the external
// key it is stored under) and Type (recorded for typing).
type Document struct {
	ID           string                 `json:"id"`
	Type         EntityType             `json:"type"`
	Labels       map[string]string      `json:"labels,omitempty"`
	Descriptions map[string]string      `json:"descriptions,omitempty"`
	Aliases      map[string][]string    `json:"aliases,omitempty"`
	Claims       map[string][]Statement `json:"claims,omitempty"`
	Sitelinks    map[string]Sitelink    `json:"sitelinks,omitempty"`
}

// Validate checks the invariants the core is responsible for: ID must be
// non-empty and equal the external key it will be stored under, and Type
// must be one of the two recognised enum values. Per-value validation is
// delegated to Value.Validate via ValidateStatements.
func (d *Document) Validate(externalID string) error {
	if strings.TrimSpace(d.ID) == "" {
		return BadRequest("entity document missing id")
	}
	if d.ID != externalID {
		return BadRequest("entity document id does not match external id")
	}
	switch d.Type {
	case TypeItem, TypeProperty:
	default:
		return BadRequest("entity document has unrecognised type")
	}
	return d.ValidateStatements()
}

// ValidateStatements walks every claim and validates its mainsnak value,
// qualifier values, and reference snak values.
func (d *Document) ValidateStatements() error {
	for _, stmts := range d.Claims {
		for _, s := range stmts {
			if err := validateStatementID(d.ID, s.StatementID); err != nil {
				return err
			}
			if err := s.Value.Validate(); err != nil {
				return err
			}
			for _, q := range s.Qualifiers {
				if err := q.Value.Validate(); err != nil {
					return err
				}
			}
			for _, ref := range s.References {
				if ref.Hash == "" {
					return InvalidReference("reference missing hash")
				}
				for _, sn := range ref.Snaks {
					if err := sn.Value.Validate(); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// EmptyRedirectBody returns the empty document body spec.md §4.F mandates
// for the revision written on the "from" side of a redirect creation.
func EmptyRedirectBody(id string) Document {
	return Document{ID: id, Type: TypeItem}
}

// validateStatementID enforces spec.md §3's "<entity-id>$<UUID>" shape
// for a caller-supplied statement_id. An empty id is left to the caller
// (new statements from an editor UI are routinely submitted without one
// and get a server-assigned id elsewhere); only a non-empty id is held
// to the format.
func validateStatementID(entityID, statementID string) error {
	if statementID == "" {
		return nil
	}
	prefix := entityID + "$"
	if !strings.HasPrefix(statementID, prefix) {
		return BadRequest("statement_id " + statementID + " does not belong to entity " + entityID)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(statementID, prefix)); err != nil {
		return BadRequest("statement_id " + statementID + " has an invalid UUID suffix")
	}
	return nil
}

// NewStatementID mints a fresh caller-side statement_id for entityID in
// the "<entity-id>$<UUID>" form spec.md §3 specifies.
func NewStatementID(entityID string) string {
	return entityID + "$" + uuid.NewString()
}
