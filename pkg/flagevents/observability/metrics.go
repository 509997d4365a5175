package observability

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records event pipeline metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEnqueued records an event accepted into the outbox.
	RecordEnqueued(ctx context.Context, kind string)

	// RecordDropped records an event dropped because the outbox was full.
	RecordDropped(ctx context.Context)

	// RecordFlush records a delivered batch. status is zero when no
	// response was received.
	RecordFlush(ctx context.Context, batchSize int, duration time.Duration, status int, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	enqueued     metric.Int64Counter
	dropped      metric.Int64Counter
	flushes      metric.Int64Counter
	flushErrors  metric.Int64Counter
	flushLatency metric.Float64Histogram
	batchSize    metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("flagevents")

	enqueued, err := meter.Int64Counter("flagevents.events.enqueued",
		metric.WithDescription("Number of events accepted into the outbox"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("flagevents.events.dropped",
		metric.WithDescription("Number of events dropped because the outbox was full"),
	)
	if err != nil {
		return nil, err
	}

	flushes, err := meter.Int64Counter("flagevents.flush.count",
		metric.WithDescription("Number of batches posted"),
	)
	if err != nil {
		return nil, err
	}

	flushErrors, err := meter.Int64Counter("flagevents.flush.errors",
		metric.WithDescription("Number of batches that failed delivery"),
	)
	if err != nil {
		return nil, err
	}

	flushLatency, err := meter.Float64Histogram("flagevents.flush.latency_ms",
		metric.WithDescription("Batch delivery latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	batchSize, err := meter.Int64Histogram("flagevents.flush.batch_size",
		metric.WithDescription("Number of events per posted batch"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		enqueued:     enqueued,
		dropped:      dropped,
		flushes:      flushes,
		flushErrors:  flushErrors,
		flushLatency: flushLatency,
		batchSize:    batchSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEnqueued records an accepted event.
func (m *otelMetrics) RecordEnqueued(ctx context.Context, kind string) {
	m.enqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDropped records a dropped event.
func (m *otelMetrics) RecordDropped(ctx context.Context) {
	m.dropped.Add(ctx, 1)
}

// RecordFlush records a posted batch.
func (m *otelMetrics) RecordFlush(ctx context.Context, batchSize int, duration time.Duration, status int, err error) {
	attrs := metric.WithAttributes(attribute.String("status", strconv.Itoa(status)))

	m.flushes.Add(ctx, 1, attrs)
	m.batchSize.Record(ctx, int64(batchSize))
	m.flushLatency.Record(ctx, float64(duration.Milliseconds()), attrs)

	if err != nil || status >= 400 {
		m.flushErrors.Add(ctx, 1, attrs)
	}
}
