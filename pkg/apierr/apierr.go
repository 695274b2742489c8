// Package apierr implements the error taxonomy of spec §7: a small set of
// typed error kinds that the HTTP layer maps to status codes, and that
// services/repositories return instead of ad hoc errors so the boundary
// never has to guess what a failure means.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the taxonomy entries in §7.
type Kind string

const (
	KindBadRequest    Kind = "bad_request"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindDuplicate     Kind = "duplicate"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindTransient     Kind = "transient"
	KindInternal      Kind = "internal"
)

// Error is the typed error every service/repository boundary returns.
type Error struct {
	Kind    Kind
	Message string
	Field   string // populated for Duplicate errors identifying the offending field
	cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, apierr.NotFound(...)) to match on Kind alone,
// regardless of message/cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...any) *Error    { return newErr(KindBadRequest, format, args...) }
func Forbidden(format string, args ...any) *Error     { return newErr(KindForbidden, format, args...) }
func NotFound(format string, args ...any) *Error      { return newErr(KindNotFound, format, args...) }
func QuotaExceeded(format string, args ...any) *Error { return newErr(KindQuotaExceeded, format, args...) }
func Internal(format string, args ...any) *Error      { return newErr(KindInternal, format, args...) }

// Duplicate builds a 409 Duplicate error identifying the offending field.
func Duplicate(field, format string, args ...any) *Error {
	e := newErr(KindDuplicate, format, args...)
	e.Field = field
	return e
}

// Transient builds a 503 error for cache/downstream unreachability that is
// safe to retry, wrapping the underlying cause.
func Transient(cause error, format string, args ...any) *Error {
	e := newErr(KindTransient, format, args...)
	e.cause = cause
	return e
}

// Wrap classifies an unclassified error as Internal, preserving it as the
// cause but never leaking it verbatim to clients (§7: "returned as Internal
// with an opaque message. Stack traces never leak to clients.").
func Wrap(cause error) *Error {
	var e *Error
	if errors.As(cause, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: "an internal error occurred", cause: cause}
}

// StatusCode maps a Kind to the HTTP status table of §6/§7.
func (k Kind) StatusCode() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicate, KindQuotaExceeded:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
