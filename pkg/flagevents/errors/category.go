package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how a failure should be handled.
type Category int

const (
	// CategoryRecoverable indicates a later attempt may succeed.
	// Examples: 400, 408, 429, any 5xx, network failures.
	CategoryRecoverable Category = iota

	// CategoryUnrecoverable indicates no later attempt will succeed.
	// Examples: 401, 403, 404.
	CategoryUnrecoverable
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryRecoverable:
		return "recoverable"
	case CategoryUnrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// IsHTTPErrorRecoverable reports whether a response with the given status is
// worth retrying. Statuses below 400 are not errors and count as recoverable.
func IsHTTPErrorRecoverable(status int) bool {
	if status >= 400 && status < 500 {
		switch status {
		case 400, 408, 429:
			return true
		default:
			return false
		}
	}
	return true
}

// CategorizeStatus classifies an HTTP status.
func CategorizeStatus(status int) Category {
	if IsHTTPErrorRecoverable(status) {
		return CategoryRecoverable
	}
	return CategoryUnrecoverable
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryRecoverable
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindUnexpectedResponse:
			return CategorizeStatus(e.Status)
		case KindInvalidContext, KindInvalidEventKey:
			return CategoryUnrecoverable
		default:
			return CategoryRecoverable
		}
	}

	if errors.Is(err, context.Canceled) {
		return CategoryUnrecoverable
	}

	// Transport failures are treated as transient.
	return CategoryRecoverable
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryRecoverable
}

// HTTPErrorMessage builds the message reported to the host for a failed
// request. context names the operation ("event posting") and retryMessage
// says what happens next when the status is recoverable.
func HTTPErrorMessage(status int, context, retryMessage string) string {
	desc := fmt.Sprintf("error %d", status)
	if status == 401 || status == 403 {
		desc += " (invalid SDK key)"
	}
	next := retryMessage
	if !IsHTTPErrorRecoverable(status) {
		next = "giving up permanently"
	}
	return fmt.Sprintf("Received %s for %s - %s", desc, context, next)
}
