package flagevents

import "errors"

// Sentinel errors returned by FlushResult and Close.
var (
	// ErrProcessorDisabled indicates the collector rejected the SDK and
	// delivery has stopped for good.
	ErrProcessorDisabled = errors.New("event processor disabled")

	// ErrProcessorClosed indicates Close has already been called.
	ErrProcessorClosed = errors.New("event processor closed")
)
