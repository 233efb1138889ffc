// Package protection implements the Protection Policy Engine (spec.md
// §4.D): a pure, side-effect-free admission check evaluated before every
// write that targets an existing entity.
package protection

import "entitystore.dev/entity"

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision        { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Admit evaluates the ordered rule list of spec.md §4.D against the
// current head's flags and the incoming request's flags. If current is
// nil (the entity does not yet exist), every check is skipped and the
// write is admitted.
func Admit(current *entity.HeadFlags, request entity.RequestFlags) Decision {
	if current == nil {
		return allow()
	}
	switch {
	case current.IsArchived:
		return deny("archived")
	case current.IsLocked:
		return deny("locked")
	case current.IsMassEditProtected && request.IsMassEdit:
		return deny("mass-edits-blocked")
	case current.IsSemiProtected && request.IsNotAutoconfirmedUser:
		return deny("semi-protected")
	default:
		return allow()
	}
}

// AdmitRedirectTarget applies the additional checks spec.md §4.F requires
// of a redirect's target beyond the standard Admit rules: the target must
// not be deleted, locked, or archived.
func AdmitRedirectTarget(target entity.HeadFlags) Decision {
	switch {
	case target.IsDeleted:
		return deny("target deleted")
	case target.IsLocked:
		return deny("target locked")
	case target.IsArchived:
		return deny("target archived")
	default:
		return allow()
	}
}
