package tracker

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch without inspecting messages.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindUnauthenticated Kind = "unauthenticated"
	KindUpstream        Kind = "upstream"
	KindPersistence     Kind = "persistence"
	KindInternal        Kind = "internal"
)

// Error is a typed failure with a user-facing message. Err, when set, holds the
// underlying cause and is never shown to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing message of a typed error, or a generic one.
func Message(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Message
	}
	return "internal error"
}

func validationError(format string, a ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, a...)}
}

func notFoundError(format string, a ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, a...)}
}

func forbiddenError(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func unauthenticatedError() *Error {
	return Unauthenticated("authentication required")
}

// Unauthenticated reports a caller with no usable identity. Transports use it
// when identity resolution fails before any tracker operation runs.
func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func upstreamError(msg string, cause error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: cause}
}

func persistenceError(msg string, cause error) *Error {
	return &Error{Kind: KindPersistence, Message: msg, Err: cause}
}
