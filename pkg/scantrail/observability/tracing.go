package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the scantrail tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("scantrail")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartScanSpan starts a span for an entire scan run.
	StartScanSpan(ctx context.Context, scanID, target string) (context.Context, trace.Span)

	// StartStoreSpan starts a span for a store operation.
	// The store span should be a child of the scan span.
	StartStoreSpan(ctx context.Context, op string) (context.Context, trace.Span)

	// StartTraversalSpan starts a span for a lineage traversal.
	StartTraversalSpan(ctx context.Context, scanID, direction string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartScanSpan starts a span for an entire scan run.
func (m *otelSpanManager) StartScanSpan(ctx context.Context, scanID, target string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "scantrail.scan",
		trace.WithAttributes(
			attribute.String("scan.id", scanID),
			attribute.String("scan.target", target),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartStoreSpan starts a span for a store operation.
func (m *otelSpanManager) StartStoreSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "scantrail.store."+op,
		trace.WithAttributes(
			attribute.String("store.op", op),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartTraversalSpan starts a span for a lineage traversal.
func (m *otelSpanManager) StartTraversalSpan(ctx context.Context, scanID, direction string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "scantrail.lineage."+direction,
		trace.WithAttributes(
			attribute.String("scan.id", scanID),
			attribute.String("lineage.direction", direction),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
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

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
