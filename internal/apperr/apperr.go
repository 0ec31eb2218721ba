// Package apperr defines the error kinds surfaced to API and realtime callers.
// Every domain failure is raised as one of these kinds at the point of
// detection; lower-level causes are wrapped with Internal so they can be
// logged without leaking to the client.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for status mapping.
type Kind uint8

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUnprocessable
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnprocessable:
		return "unprocessable_input"
	default:
		return "internal_error"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Message is safe to show to callers, Err is
// the original cause and is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, msg string) *Error {
	if msg == "" {
		msg = http.StatusText(k.Status())
	}
	return &Error{Kind: k, Message: msg}
}

func BadRequest(msg string) *Error    { return newErr(KindBadRequest, msg) }
func Unauthorized(msg string) *Error  { return newErr(KindUnauthorized, msg) }
func Forbidden(msg string) *Error     { return newErr(KindForbidden, msg) }
func NotFound(msg string) *Error      { return newErr(KindNotFound, msg) }
func Conflict(msg string) *Error      { return newErr(KindConflict, msg) }
func Unprocessable(msg string) *Error { return newErr(KindUnprocessable, msg) }

// Validation is a BadRequest carrying a per-field breakdown.
func Validation(fields map[string]string) *Error {
	e := newErr(KindBadRequest, "validation failed")
	e.Fields = fields
	return e
}

// Internal wraps err as an InternalError. An err that is already classified
// is returned unchanged so callers can wrap unconditionally.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindInternal, Message: http.StatusText(http.StatusInternalServerError), Err: err}
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
