// Package errors defines the error model for the event pipeline: a closed set
// of error kinds, HTTP status classification, and a small retry helper.
//
// Errors produced asynchronously (delivery failures, configuration problems)
// are reported to the host through an error callback rather than returned to
// callers of fire-and-forget operations.
package errors

import (
	"errors"
	"fmt"
)

// Kind tags an Error. The set is closed; callers dispatch on Kind rather than
// inspecting concrete types.
type Kind int

const (
	// KindUnexpectedResponse indicates the collector answered with an error status.
	KindUnexpectedResponse Kind = iota

	// KindInvalidContext indicates a context failed structural validation.
	KindInvalidContext

	// KindInvalidEventKey indicates a custom event was tracked without a usable key.
	KindInvalidEventKey

	// KindDataFetch indicates flag data could not be retrieved.
	KindDataFetch

	// KindTimeout indicates an operation did not finish in time.
	KindTimeout
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUnexpectedResponse:
		return "unexpected_response"
	case KindInvalidContext:
		return "invalid_context"
	case KindInvalidEventKey:
		return "invalid_event_key"
	case KindDataFetch:
		return "data_fetch"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the pipeline's tagged error value.
type Error struct {
	Kind    Kind
	Message string

	// Status is the HTTP status for KindUnexpectedResponse, zero otherwise.
	Status int

	// Err is an optional underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind, so that
// errors.Is(err, &Error{Kind: KindTimeout}) works as a tag check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Status == 0 || t.Status == e.Status)
}

// UnexpectedResponse creates a KindUnexpectedResponse error.
func UnexpectedResponse(status int, message string) *Error {
	return &Error{Kind: KindUnexpectedResponse, Status: status, Message: message}
}

// InvalidContext creates a KindInvalidContext error.
func InvalidContext(message string) *Error {
	return &Error{Kind: KindInvalidContext, Message: message}
}

// InvalidEventKey creates a KindInvalidEventKey error.
func InvalidEventKey(message string) *Error {
	return &Error{Kind: KindInvalidEventKey, Message: message}
}

// DataFetch creates a KindDataFetch error wrapping err.
func DataFetch(message string, err error) *Error {
	return &Error{Kind: KindDataFetch, Message: message, Err: err}
}

// Timeout creates a KindTimeout error.
func Timeout(message string) *Error {
	return &Error{Kind: KindTimeout, Message: message}
}

// KindOf returns the Kind of err and whether err carries one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// StatusOf returns the HTTP status carried by err, or zero.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
