// Package brokererr defines the core's stable error taxonomy (§6.3, §7):
// every error crossing a component boundary carries one of a fixed set of
// codes, so a caller (an Ingress client) can make decisions without
// inspecting the message text.
package brokererr

import (
	"errors"
	"fmt"
)

// Code is a stable identifier for an error class.
type Code string

const (
	NotFound          Code = "NotFound"
	Conflict          Code = "Conflict"
	AlreadyExists     Code = "AlreadyExists"
	ValidationError   Code = "ValidationError"
	RateLimitTimeout  Code = "RateLimitTimeout"
	CircuitOpen       Code = "CircuitOpen"
	DependencyMissing Code = "DependencyMissing"
	Internal          Code = "Internal"
)

// Error is a structured error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is lets errors.Is match any *Error sharing the same Code, regardless of
// message or wrapped cause — callers compare against the taxonomy, not a
// specific instance.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps err in an Error with the given code, preserving the
// errors.Is/As chain.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Wrapped: err}
}

// CodeOf extracts the Code from err, if err is or wraps an *Error. Returns
// Internal for anything with no explicit classification. CodeOf only
// reports the code; nothing in the module uses it to route a task, and it
// does not move anything to the DLQ.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return Internal
}

// Sentinel values for errors.Is where the code is already known statically.
var (
	ErrNotFound          = New(NotFound, "record not found")
	ErrConflict          = New(Conflict, "state changed concurrently")
	ErrAlreadyExists     = New(AlreadyExists, "record already exists")
	ErrRateLimitTimeout  = New(RateLimitTimeout, "rate limit acquire timed out")
	ErrCircuitOpen       = New(CircuitOpen, "circuit breaker is open")
	ErrDependencyMissing = New(DependencyMissing, "no handler registered for task type")
)
