package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the core surfaces across its public
// boundary. Callers branch on kinds rather than error strings.
type ErrorKind string

// Canonical error kinds.
const (
	KindValidation       ErrorKind = "validation"
	KindDuplicateKey     ErrorKind = "duplicate_key"
	KindNotFound         ErrorKind = "not_found"
	KindInvalidFilter    ErrorKind = "invalid_filter"
	KindCorruptSnapshot  ErrorKind = "corrupt_snapshot"
	KindStoreUnavailable ErrorKind = "store_unavailable"
	KindTimeout          ErrorKind = "timeout"
)

// Error carries an ErrorKind alongside the message and an optional cause.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches two domain errors by kind so sentinel-style comparisons work.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// Errf builds a typed error.
func Errf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Validationf builds a validation error.
func Validationf(format string, args ...any) *Error {
	return Errf(KindValidation, format, args...)
}

// KindOf extracts the kind from err, or empty when err carries none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) carries kind.
func IsKind(err error, kind ErrorKind) bool { return KindOf(err) == kind }
