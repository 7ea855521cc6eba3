// Package errclass defines the stable error classes surfaced by RVC.
package errclass

import (
	"errors"
	"fmt"
)

// Error is a stable, machine-readable error class with an optional cause.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is matches any Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithMessage returns a new Error with the same Code but a specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg, Err: e.Err}
}

// WithMessagef returns a new Error with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

// Wrap returns a new Error with the same Code and message, caused by err.
func (e *Error) Wrap(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Err: err}
}

var (
	// ErrPrecursorMissing: a snapshot was requested for a record without identity.
	ErrPrecursorMissing = &Error{Code: "E_PRECURSOR_MISSING"}
	// ErrDuplicateVersion: (ref_id, version) already exists or the counter moved underneath us.
	ErrDuplicateVersion = &Error{Code: "E_DUPLICATE_VERSION"}
	// ErrVersioningFailure: the snapshot or counter write failed after the primary write.
	ErrVersioningFailure = &Error{Code: "E_VERSIONING_FAILURE"}
	// ErrConfiguration: a selector or record type definition is invalid.
	ErrConfiguration = &Error{Code: "E_CONFIGURATION"}

	ErrStorage           = &Error{Code: "E_STORAGE"}
	ErrRecordNotFound    = &Error{Code: "E_RECORD_NOT_FOUND"}
	ErrInvalidAttribute  = &Error{Code: "E_INVALID_ATTRIBUTE"}
	ErrUnknownRecordType = &Error{Code: "E_UNKNOWN_RECORD_TYPE"}
)

// Code returns the code of the first Error in err's chain, or "" if none.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Fatal reports whether err belongs to a class that must never be retried.
func Fatal(err error) bool {
	return errors.Is(err, ErrPrecursorMissing) ||
		errors.Is(err, ErrDuplicateVersion) ||
		errors.Is(err, ErrVersioningFailure) ||
		errors.Is(err, ErrConfiguration)
}
