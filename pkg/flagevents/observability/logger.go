// Package observability provides structured logging, metrics, and tracing
// for the event pipeline.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled. The
// logging helpers accept a nil logger and do nothing in that case.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger tags a logger with the pipeline component that owns it.
func EnrichLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("component", component))
}

// LogFlush logs a batch about to be posted.
func LogFlush(logger *slog.Logger, events int, url string) {
	if logger == nil {
		return
	}
	logger.Debug("flushing events",
		slog.Int("events", events),
		slog.String("url", url),
	)
}

// LogCapacityExceeded logs the first drop of an overflow episode.
func LogCapacityExceeded(logger *slog.Logger, capacity int) {
	if logger == nil {
		return
	}
	logger.Warn("exceeded event queue capacity, increase capacity to avoid dropping events",
		slog.Int("capacity", capacity),
	)
}

// LogSendFailure logs a delivery that got an error status or no response.
// status is zero when no response was received.
func LogSendFailure(logger *slog.Logger, status int, err error) {
	if logger == nil {
		return
	}
	attrs := []any{slog.Int("status", status)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	logger.Warn("event delivery failed", attrs...)
}

// LogDisabled logs the permanent shutdown of event delivery.
func LogDisabled(logger *slog.Logger, status int) {
	if logger == nil {
		return
	}
	logger.Error("event processor disabled after unrecoverable response",
		slog.Int("status", status),
	)
}

// LogSummaryDropped logs a feature event left out of summaries because its
// context could not be hashed.
func LogSummaryDropped(logger *slog.Logger, flagKey string) {
	if logger == nil {
		return
	}
	logger.Debug("feature event excluded from summary",
		slog.String("flag_key", flagKey),
	)
}

// LogDiagnostic logs a diagnostic event post.
func LogDiagnostic(logger *slog.Logger, kind string) {
	if logger == nil {
		return
	}
	logger.Debug("sending diagnostic event",
		slog.String("kind", kind),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	elapsed := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
