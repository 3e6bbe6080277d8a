// Package forgeerr defines the typed error taxonomy used across the
// forge transport, healing orchestrator, and webhook intake.
package forgeerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the first-class error variants.
type Kind string

const (
	Validation      Kind = "validation"
	AuthUnconfigured Kind = "auth_unconfigured"
	Unauthorized    Kind = "unauthorized"
	NotFound        Kind = "not_found"
	Conflict        Kind = "conflict"
	Upstream        Kind = "upstream"
	SandboxFailure  Kind = "sandbox_failure"
	SandboxTimeout  Kind = "sandbox_timeout"
	Fatal           Kind = "fatal"
)

// Error is a typed error carrying a Kind and an underlying cause.
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

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, forgeerr.New(forgeerr.NotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error of the given Kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given Kind, recording cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Of returns a sentinel of the given Kind for use with errors.Is.
func Of(kind Kind) *Error { return &Error{Kind: kind} }

// As unwraps err looking for an *Error, mirroring errors.As without
// requiring callers to declare the target variable inline.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
