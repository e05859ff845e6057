// Package apperr defines the error taxonomy shared by the store, the
// permission layer, the listener and the chain resolver.
//
// Timeout and cancellation are deliberately separate from every other code:
// a long-poll caller retries on ErrTimeout with the same watermark and stops
// on ErrCancelled.
package apperr

import (
	"errors"
	"fmt"
)

// Code categorizes an Error.
type Code string

const (
	// CodeBadRequest covers malformed filters, unknown fields and invalid
	// permission characters. Always raised before any store mutation.
	CodeBadRequest Code = "BAD_REQUEST"

	// CodeForbidden means the actor may not perform the action on a record
	// it can perceive.
	CodeForbidden Code = "FORBIDDEN"

	// CodeNotFound means the id does not resolve or the actor cannot read
	// it. The two cases are intentionally indistinguishable.
	CodeNotFound Code = "NOT_FOUND"

	// CodeTimeout means a long-poll wait ended with no match.
	CodeTimeout Code = "TIMEOUT"

	// CodeCancelled means the wait was cancelled by disconnect or shutdown.
	CodeCancelled Code = "CANCELLED"
)

// Error is a categorized error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, ErrTimeout) holds
// for any timeout regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code && t.Message == ""
	}
	return false
}

// Sentinels for errors.Is matching by code.
var (
	ErrBadRequest = &Error{Code: CodeBadRequest}
	ErrForbidden  = &Error{Code: CodeForbidden}
	ErrNotFound   = &Error{Code: CodeNotFound}
	ErrTimeout    = &Error{Code: CodeTimeout}
	ErrCancelled  = &Error{Code: CodeCancelled}
)

// BadRequest returns a CodeBadRequest error.
func BadRequest(format string, args ...any) *Error {
	return &Error{Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Forbidden returns a CodeForbidden error.
func Forbidden(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a CodeNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Timeout returns a CodeTimeout error.
func Timeout(format string, args ...any) *Error {
	return &Error{Code: CodeTimeout, Message: fmt.Sprintf(format, args...)}
}

// Cancelled returns a CodeCancelled error wrapping cause.
func Cancelled(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeCancelled, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Wrap returns an error of the given code wrapping err.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the Code from err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsBadRequest reports whether err carries CodeBadRequest.
func IsBadRequest(err error) bool { return CodeOf(err) == CodeBadRequest }

// IsForbidden reports whether err carries CodeForbidden.
func IsForbidden(err error) bool { return CodeOf(err) == CodeForbidden }

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsTimeout reports whether err carries CodeTimeout.
func IsTimeout(err error) bool { return CodeOf(err) == CodeTimeout }

// IsCancelled reports whether err carries CodeCancelled.
func IsCancelled(err error) bool { return CodeOf(err) == CodeCancelled }
