// Package apperr defines the typed error kinds that cross component
// boundaries in the collaborative editor core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies which disposition an Error maps to: an HTTP status at
// the API edge, an error_message payload over a session.
type Kind string

const (
	NotFound           Kind = "not_found"
	Forbidden          Kind = "forbidden"
	InvalidOperation   Kind = "invalid_operation"
	InvalidBaseVersion Kind = "invalid_base_version"
	Transient          Kind = "transient_error"
	Auth               Kind = "auth_error"
	Conflict           Kind = "conflict"
)

// Error wraps an underlying cause with the Kind the session layer and the
// HTTP handlers use to decide disposition.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, defaulting to Transient for errors
// that didn't originate in this package (store timeouts, network errors).
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Transient
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
