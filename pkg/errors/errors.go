// Package errors provides error wrapping utilities and the failure taxonomy
// shared by the transfer client, the history guard and the orchestrator.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNetwork    Kind = "network"
	KindProtocol   Kind = "protocol"
	KindServer     Kind = "server"
	KindCancelled  Kind = "cancelled"
)

// Error is a classified, human-readable failure.
// Message is what gets shown to the user; Err keeps the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status for server failures, zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithCause creates a classified error that wraps err.
func WithCause(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the user-facing message of the first *Error in err's
// chain, falling back to err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// As is errors.As re-exported so callers need a single errors import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is errors.Is re-exported so callers need a single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
