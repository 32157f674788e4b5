package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the client components.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindValidation ErrorKind = "validation"
	KindNetwork    ErrorKind = "network"
	KindMedia      ErrorKind = "media"
	KindConflict   ErrorKind = "conflict"
)

// Error is a user-facing failure with a kind and an optional cause.
// Message is what gets stored and shown; Err is kept for errors.Is/As.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewAuthError reports an absent or expired credential.
func NewAuthError(message string) *Error {
	return &Error{Kind: KindAuth, Message: message}
}

// NewValidationError reports a local precondition failure.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NewNetworkError reports a transport or server failure.
func NewNetworkError(message string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Err: err}
}

// NewMediaError reports an unavailable or denied audio device.
func NewMediaError(message string, err error) *Error {
	return &Error{Kind: KindMedia, Message: message, Err: err}
}

// NewConflictError reports an operation on a stale or removed job.
func NewConflictError(message string, err error) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// IsKind reports whether err carries a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// Message returns the user-facing message for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
