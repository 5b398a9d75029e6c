// Package errors provides status-coded errors for the node core.
//
// A Status is itself an error, so callers can test for a class of failure with
// the standard library: errors.Is(err, errors.NotFound).
package errors

import (
	"errors"
	"fmt"
)

// Status is a failure class.
type Status int

const (
	UnknownError Status = iota
	// NotFound means data required by the operation (a header, a keystone,
	// a payload) could not be resolved.
	NotFound
	// BadRequest means the input is malformed.
	BadRequest
	// Conflict means the input duplicates or contradicts existing state.
	Conflict
	// Timeout means a bounded wait expired. Callers may retry.
	Timeout
	// ConsensusMismatch means a computed commitment or fork choice diverged
	// from what was expected. It indicates a correctness bug, never a timing
	// issue, and must not be retried.
	ConsensusMismatch
	// InternalError means an invariant of the implementation was broken.
	InternalError
)

var statusNames = map[Status]string{
	UnknownError:      "unknown error",
	NotFound:          "not found",
	BadRequest:        "bad request",
	Conflict:          "conflict",
	Timeout:           "timeout",
	ConsensusMismatch: "consensus mismatch",
	InternalError:     "internal error",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Error implements error.
func (s Status) Error() string { return s.String() }

// With returns a new error with the given status and a message built with
// fmt.Sprint.
func (s Status) With(v ...interface{}) *Error {
	return &Error{Code: s, Message: fmt.Sprint(v...)}
}

// WithFormat returns a new error with the given status and a formatted
// message. A %w verb records the wrapped error as the cause.
func (s Status) WithFormat(format string, args ...interface{}) *Error {
	err := fmt.Errorf(format, args...)
	e := &Error{Code: s, Message: err.Error()}
	if u := errors.Unwrap(err); u != nil {
		e.Cause = u
	}
	return e
}

// WithCauseAndFormat is WithFormat with an explicit cause.
func (s Status) WithCauseAndFormat(cause error, format string, args ...interface{}) *Error {
	return &Error{Code: s, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Wrap returns err with the given status attached. Wrapping nil returns nil.
// An *Error that already carries a known status keeps it.
func (s Status) Wrap(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Code != UnknownError {
		return err
	}
	return &Error{Code: s, Message: err.Error(), Cause: err}
}

// Error is an error with a status code and an optional cause.
type Error struct {
	Code    Status
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches the error's own status, so errors.Is(err, NotFound) works
// through any number of wraps.
func (e *Error) Is(target error) bool {
	s, ok := target.(Status)
	return ok && s == e.Code
}

// Code returns the status of the first *Error or Status in err's chain, or
// UnknownError.
func Code(err error) Status {
	if err == nil {
		return UnknownError
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return UnknownError
}

// Re-exported so callers importing this package do not also need the
// standard library one.
var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
	Join   = errors.Join
)
