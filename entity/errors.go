// Package entity defines the core data model of the versioned entity store:
// the tagged-union Value type, entity documents, statements and references,
// canonical JSON encoding, and the error taxonomy shared by every other
// package in the module.
package entity

import "fmt"

// Kind classifies an Error into one of the store's recoverable failure
// modes. The HTTP layer maps each Kind to a status code; callers of the
// pipeline packages should switch on Kind rather than string-matching
// error messages.
type Kind string

const (
	KindNotFound         Kind = "not-found"
	KindGone             Kind = "gone"
	KindForbidden        Kind = "forbidden"
	KindConflict         Kind = "conflict"
	KindLockedLike       Kind = "locked-like"
	KindBadRequest       Kind = "bad-request"
	KindIOError          Kind = "io-error"
	KindInvalidReference Kind = "invalid-reference"
)

// Error is the error type returned by every package in this module that can
// fail in a way the caller is expected to branch on. It wraps an optional
// underlying cause without discarding it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, &entity.Error{Kind: entity.KindConflict}) style
// comparisons: any *Error target with the same Kind matches, whatever its
// message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func NotFound(msg string) *Error                { return newErr(KindNotFound, msg, nil) }
func Gone(msg string) *Error                    { return newErr(KindGone, msg, nil) }
func Forbidden(reason string) *Error            { return newErr(KindForbidden, reason, nil) }
func Conflict(msg string) *Error                { return newErr(KindConflict, msg, nil) }
func LockedLike(msg string) *Error              { return newErr(KindLockedLike, msg, nil) }
func BadRequest(msg string) *Error              { return newErr(KindBadRequest, msg, nil) }
func IOError(msg string, cause error) *Error    { return newErr(KindIOError, msg, cause) }
func InvalidReference(msg string) *Error        { return newErr(KindInvalidReference, msg, nil) }

// KindOf extracts the Kind of err if it is (or wraps) an *Error, reporting
// ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// As is a thin wrapper so callers don't need a separate "errors" import
// just to unwrap an *Error. It follows single-error Unwrap chains only;
// errors joined via Unwrap() []error are not searched.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
