package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("flagevents")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartFlushSpan starts a span covering one flush.
	StartFlushSpan(ctx context.Context, events int) (context.Context, trace.Span)

	// StartSendSpan starts a span for one delivery attempt sequence.
	// It should be a child of the flush span.
	StartSendSpan(ctx context.Context, url, payloadKind string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartFlushSpan starts a span covering one flush.
func (m *otelSpanManager) StartFlushSpan(ctx context.Context, events int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flagevents.flush",
		trace.WithAttributes(attribute.Int("events.count", events)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartSendSpan starts a span for a delivery.
func (m *otelSpanManager) StartSendSpan(ctx context.Context, url, payloadKind string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flagevents.send",
		trace.WithAttributes(
			attribute.String("url.full", url),
			attribute.String("payload.kind", payloadKind),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
