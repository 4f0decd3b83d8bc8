// Package orcherrors implements the closed error taxonomy of SPEC_FULL.md
// §10.3: a single Error type carrying a Kind, in the style of
// blueman82-conductor's executor/errors.go TaskError/ExecutionError/
// TimeoutError trio.
package orcherrors

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error categories callers pattern-match
// on (spec.md §7).
type Kind string

const (
	NotFound          Kind = "not_found"
	Conflict          Kind = "conflict"
	StateError        Kind = "state_error"
	ValidationError   Kind = "validation_error"
	Timeout           Kind = "timeout"
	AgentError        Kind = "agent_error"
	StorageError      Kind = "storage_error"
	ConfigurationErr  Kind = "configuration_error"
	InternalError     Kind = "internal_error"
)

// Error is the concrete error type returned across the core's public
// surface.
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

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind, wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

func StateErrorf(format string, args ...any) *Error {
	return New(StateError, fmt.Sprintf(format, args...))
}

func ValidationErrorf(format string, args ...any) *Error {
	return New(ValidationError, fmt.Sprintf(format, args...))
}

func Timeoutf(format string, args ...any) *Error {
	return New(Timeout, fmt.Sprintf(format, args...))
}

func AgentErrorf(format string, args ...any) *Error {
	return New(AgentError, fmt.Sprintf(format, args...))
}

func ConfigurationErrorf(format string, args ...any) *Error {
	return New(ConfigurationErr, fmt.Sprintf(format, args...))
}

// Is reports whether err is an *Error of the given kind, walking the
// unwrap chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// As extracts an *Error from err if present.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// KindOf returns the Kind of err, or InternalError if err is not an
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}
