// Package errors defines the error taxonomy shared by the scope session,
// the target link and the campaign controller.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable class
	Reason   string            // Optional finer-grained tag within Code
	Message  string            // Human readable message
	Metadata map[string]string // Additional context (setting name, state, ...)
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target with an empty
// Reason matches every error of the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Withf derives a new error from a sentinel, keeping its Code and Reason so
// errors.Is still matches, with a formatted message appended.
func (e *Error) Withf(format string, args ...interface{}) *Error {
	return &Error{
		Code:     e.Code,
		Reason:   e.Reason,
		Message:  e.Message + ": " + fmt.Sprintf(format, args...),
		Metadata: e.Metadata,
		Cause:    e.Cause,
	}
}

// WithCause derives a new error from a sentinel that wraps cause.
func (e *Error) WithCause(cause error) *Error {
	return &Error{Code: e.Code, Reason: e.Reason, Message: e.Message, Metadata: e.Metadata, Cause: cause}
}

// WithMetadata returns a copy of e carrying the given key/value pair.
func (e *Error) WithMetadata(key, value string) *Error {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	return &Error{Code: e.Code, Reason: e.Reason, Message: e.Message, Metadata: md, Cause: e.Cause}
}

func sentinel(code Code, reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

// Class sentinels match every error of their code.
var (
	ErrConnection    = New(CodeConnection, "connection error")
	ErrConfiguration = New(CodeConfiguration, "configuration error")
	ErrProtocol      = New(CodeProtocol, "protocol error")
	ErrTimeout       = New(CodeTimeout, "timed out")
	ErrFaulted       = New(CodeFaulted, "instrument faulted")
)

var (
	ErrNotConnected     = sentinel(CodeConnection, "not_connected", "scope is not connected")
	ErrAlreadyConnected = sentinel(CodeConnection, "already_connected", "scope is already connected")
	ErrDeviceNotFound   = sentinel(CodeConnection, "device_not_found", "no matching instrument found")

	ErrInvalidConfiguration = sentinel(CodeConfiguration, "invalid", "invalid configuration value")
	ErrUnsupportedOperation = sentinel(CodeConfiguration, "unsupported", "unsupported operation")
	ErrUnknownSetting       = sentinel(CodeConfiguration, "unknown_setting", "unknown setting")
	ErrClockLockFailed      = sentinel(CodeConfiguration, "clock_lock_failed", "could not lock clock")
)

// CodeOf returns the Code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given Code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return stderrors.Is(err, New(code, ""))
}

// IsFatal reports whether err should stop a campaign. Errors outside the
// taxonomy are treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	c := CodeOf(err)
	if c == "" {
		return true
	}
	return c.Fatal()
}
