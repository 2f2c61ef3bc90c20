// Package apperr defines the machine-readable error kinds returned by every
// watchlist endpoint.
//
// Services return *Error values (usually one of the sentinels, optionally
// decorated with a hint, detail or cause). Handlers hand any error to
// httputil.WriteAppError, which renders {"error": kind, "hint"?, "detail"?}
// with the status bound to the kind. Anything that is not an *Error is
// reported as server_error and its message is never sent to the client.
//
//	if errors.Is(err, apperr.ErrLastOwnerProtected) {
//	    ...
//	}
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable error identifier sent to clients.
type Kind string

// Error kinds.
const (
	KindUnauthorized                      Kind = "unauthorized"
	KindForbidden                         Kind = "forbidden"
	KindForbiddenOwnerOnly                Kind = "forbidden_owner_only"
	KindForbiddenHigherOrEqual            Kind = "forbidden_higher_or_equal"
	KindForbiddenCannotGrantEqualOrHigher Kind = "forbidden_cannot_grant_equal_or_higher"
	KindOwnerUnique                       Kind = "owner_unique"
	KindOwnerLocked                       Kind = "owner_locked"
	KindOwnerAlwaysAdmin                  Kind = "owner_always_admin"
	KindLastOwnerProtected                Kind = "last_owner_protected"
	KindSystemRoleLocked                  Kind = "system_role_locked"
	KindRoleInUse                         Kind = "role_in_use"
	KindInvalidPerms                      Kind = "invalid_perms"
	KindUsernameTaken                     Kind = "username_taken"
	KindUsernameInvalid                   Kind = "username_invalid"
	KindUsernameLength                    Kind = "username_length"
	KindNotFound                          Kind = "not_found"
	KindUserNotFound                      Kind = "user_not_found"
	KindBadPayload                        Kind = "bad_payload"
	KindNoChanges                         Kind = "aucune_modification"
	KindInvalidStatus                     Kind = "invalid_status"
	KindInvalidTransition                 Kind = "invalid_transition"
	KindOnlyOwnerCanResetToPending        Kind = "only_owner_can_reset_to_pending"
	KindOnlyAuthorOrOwnerCanCancel        Kind = "only_author_or_owner_can_cancel"
	KindConflict                          Kind = "conflict"
	KindServiceRoleAbsent                 Kind = "service_role_absent"
	KindUpstream                          Kind = "upstream_error"
	KindServerError                       Kind = "server_error"
)

// HTTPStatus returns the status code bound to the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden, KindForbiddenOwnerOnly, KindForbiddenHigherOrEqual,
		KindForbiddenCannotGrantEqualOrHigher, KindOwnerUnique, KindOwnerLocked,
		KindOwnerAlwaysAdmin, KindSystemRoleLocked, KindOnlyOwnerCanResetToPending,
		KindOnlyAuthorOrOwnerCanCancel:
		return http.StatusForbidden
	case KindLastOwnerProtected, KindRoleInUse, KindUsernameTaken, KindConflict,
		KindInvalidTransition:
		return http.StatusConflict
	case KindInvalidPerms, KindUsernameInvalid, KindUsernameLength, KindBadPayload,
		KindNoChanges, KindInvalidStatus:
		return http.StatusBadRequest
	case KindNotFound, KindUserNotFound:
		return http.StatusNotFound
	case KindServiceRoleAbsent:
		return http.StatusNotImplemented
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error carrying a kind plus optional client-facing context.
type Error struct {
	Kind   Kind
	Hint   string
	Detail any
	cause  error
}

// New creates an error of the given kind.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// HTTPStatus returns the HTTP status for this error.
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// WithHint returns a copy carrying a human-readable hint.
func (e *Error) WithHint(hint string) *Error {
	return &Error{Kind: e.Kind, Hint: hint, Detail: e.Detail, cause: e.cause}
}

// WithDetail returns a copy carrying structured detail (for example the
// offending permission keys).
func (e *Error) WithDetail(detail any) *Error {
	return &Error{Kind: e.Kind, Hint: e.Hint, Detail: detail, cause: e.cause}
}

// WithCause returns a copy wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Kind: e.Kind, Hint: e.Hint, Detail: e.Detail, cause: err}
}

// Sentinel errors for use with errors.Is.
var (
	ErrUnauthorized                      = New(KindUnauthorized)
	ErrForbidden                         = New(KindForbidden)
	ErrForbiddenOwnerOnly                = New(KindForbiddenOwnerOnly)
	ErrForbiddenHigherOrEqual            = New(KindForbiddenHigherOrEqual)
	ErrForbiddenCannotGrantEqualOrHigher = New(KindForbiddenCannotGrantEqualOrHigher)
	ErrOwnerUnique                       = New(KindOwnerUnique)
	ErrOwnerLocked                       = New(KindOwnerLocked)
	ErrOwnerAlwaysAdmin                  = New(KindOwnerAlwaysAdmin)
	ErrLastOwnerProtected                = New(KindLastOwnerProtected)
	ErrSystemRoleLocked                  = New(KindSystemRoleLocked)
	ErrRoleInUse                         = New(KindRoleInUse)
	ErrInvalidPerms                      = New(KindInvalidPerms)
	ErrUsernameTaken                     = New(KindUsernameTaken)
	ErrUsernameInvalid                   = New(KindUsernameInvalid)
	ErrUsernameLength                    = New(KindUsernameLength)
	ErrNotFound                          = New(KindNotFound)
	ErrUserNotFound                      = New(KindUserNotFound)
	ErrBadPayload                        = New(KindBadPayload)
	ErrNoChanges                         = New(KindNoChanges)
	ErrInvalidStatus                     = New(KindInvalidStatus)
	ErrInvalidTransition                 = New(KindInvalidTransition)
	ErrOnlyOwnerCanResetToPending        = New(KindOnlyOwnerCanResetToPending)
	ErrOnlyAuthorOrOwnerCanCancel        = New(KindOnlyAuthorOrOwnerCanCancel)
	ErrConflict                          = New(KindConflict)
	ErrServiceRoleAbsent                 = New(KindServiceRoleAbsent)
	ErrUpstream                          = New(KindUpstream)
	ErrServerError                       = New(KindServerError)
)

// Internal wraps an unexpected failure as server_error.
func Internal(err error) *Error {
	return ErrServerError.WithCause(err)
}

// codeInvalidText is the SQLSTATE a database raises when a malformed value,
// typically an id that is not a UUID, is bound to a typed column.
const codeInvalidText = "22P02"

// sqlStater is implemented by driver errors carrying a SQLSTATE.
type sqlStater interface {
	SQLState() string
}

func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var st sqlStater
	if errors.As(err, &st) && st.SQLState() == codeInvalidText {
		return ErrBadPayload.WithHint("invalid identifier").WithCause(err)
	}
	return nil
}

// KindOf extracts the kind of err, reporting server_error for foreign errors.
func KindOf(err error) Kind {
	if e := classify(err); e != nil {
		return e.Kind
	}
	return KindServerError
}

// From returns err as an *Error, wrapping foreign errors as server_error.
// A malformed value rejected by the database is reported as bad_payload.
func From(err error) *Error {
	if e := classify(err); e != nil {
		return e
	}
	return Internal(err)
}
