// Package apierrors defines the typed error taxonomy shared by every
// erpcache component. Components return a *Error instead of a bare error
// so the HTTP boundary can map it to a status code without inspecting
// string contents.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP status mapping and refresh-summary
// accounting. It never varies by family or entity, only by failure shape.
type Kind string

const (
	// Validation marks a bad request shape or an out-of-range value.
	// Never retried server-side.
	Validation Kind = "validation"
	// NotFound marks a resource absent in ERP or cache. Not counted as an
	// error in aggregated refresh summaries.
	NotFound Kind = "not_found"
	// Conflict marks a duplicate unique index (email/username/phone/device).
	Conflict Kind = "conflict"
	// Unauthorized marks missing or invalid credentials.
	Unauthorized Kind = "unauthorized"
	// Forbidden marks a disabled account or an action outside the caller's
	// permissions.
	Forbidden Kind = "forbidden"
	// Transient marks an ERP/KV failure where the dependency was reachable
	// but returned 5xx or timed out. Counted as a per-item error in refresh;
	// does not abort the batch.
	Transient Kind = "transient"
	// Permanent marks an ERP 4xx on a known-valid id. Surfaced as a refresh
	// error for that item; never retried.
	Permanent Kind = "permanent"
	// Internal marks a programmer error or unexpected exception.
	Internal Kind = "internal"
)

// statusByKind maps each Kind to the HTTP status spec.md §7 assigns it.
var statusByKind = map[Kind]int{
	Validation:   http.StatusBadRequest,
	NotFound:     http.StatusNotFound,
	Conflict:     http.StatusConflict,
	Unauthorized: http.StatusUnauthorized,
	Forbidden:    http.StatusForbidden,
	Transient:    http.StatusBadGateway,
	Permanent:    http.StatusBadRequest,
	Internal:     http.StatusInternalServerError,
}

// Error is the typed error every erpcache component returns across package
// boundaries. Fields carry enough context for the HTTP layer and the
// refresh/webhook summaries without re-parsing a message string.
type Error struct {
	Kind    Kind
	Message string
	Entity  string // "family:id", when applicable
	Err     error  // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Entity)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code this error's Kind maps to.
func (e *Error) Status() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around an existing cause.
func Wrap(kind Kind, entity string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Entity: entity, Err: err}
}

// WithEntity returns a copy of e annotated with the entity under operation.
func (e *Error) WithEntity(entity string) *Error {
	clone := *e
	clone.Entity = entity
	return &clone
}

// As reports whether err (or a wrapped cause) is an *Error, writing it into
// target when so. It is a thin wrapper over errors.As for call-site brevity.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Kind == kind
}

// KindOf extracts the Kind of err, defaulting to Internal when err is not
// an *Error — this is the "anything else is wrapped into Internal at the
// boundary" policy from spec.md §7.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return Internal
}

// Convenience constructors for the common call sites.

func Validationf(format string, args ...interface{}) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...interface{}) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

func Unauthorizedf(format string, args ...interface{}) *Error {
	return New(Unauthorized, fmt.Sprintf(format, args...))
}

func Forbiddenf(format string, args ...interface{}) *Error {
	return New(Forbidden, fmt.Sprintf(format, args...))
}

func Transientf(format string, args ...interface{}) *Error {
	return New(Transient, fmt.Sprintf(format, args...))
}

func Permanentf(format string, args ...interface{}) *Error {
	return New(Permanent, fmt.Sprintf(format, args...))
}

func Internalf(format string, args ...interface{}) *Error {
	return New(Internal, fmt.Sprintf(format, args...))
}
