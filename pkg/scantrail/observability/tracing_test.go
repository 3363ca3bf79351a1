package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest creates a test tracer provider with an in-memory span
// recorder.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	// Update the package-level tracer
	tracer = otel.Tracer("scantrail")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}
	return exporter, cleanup
}

func spanAttr(s tracetest.SpanStub, key attribute.Key) string {
	for _, attr := range s.Attributes {
		if attr.Key == key {
			return attr.Value.AsString()
		}
	}
	return ""
}

func TestStartScanSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	m := NewSpanManager()

	ctx, span := m.StartScanSpan(context.Background(), "scan-123", "example.com")
	require.NotNil(t, span)
	require.NotNil(t, ctx)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "scantrail.scan", s.Name)
	assert.Equal(t, "scan-123", spanAttr(s, "scan.id"))
	assert.Equal(t, "example.com", spanAttr(s, "scan.target"))
}

func TestStartStoreSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	m := NewSpanManager()

	t.Run("named after the operation", func(t *testing.T) {
		exporter.Reset()

		_, span := m.StartStoreSpan(context.Background(), "store_event")
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "scantrail.store.store_event", spans[0].Name)
		assert.Equal(t, "store_event", spanAttr(spans[0], "store.op"))
	})

	t.Run("child of the scan span", func(t *testing.T) {
		exporter.Reset()

		ctx, scanSpan := m.StartScanSpan(context.Background(), "scan-1", "example.com")
		_, storeSpan := m.StartStoreSpan(ctx, "store_event")
		storeSpan.End()
		scanSpan.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)
		var store, scan tracetest.SpanStub
		for _, s := range spans {
			switch s.Name {
			case "scantrail.store.store_event":
				store = s
			case "scantrail.scan":
				scan = s
			}
		}
		assert.Equal(t, scan.SpanContext.SpanID(), store.Parent.SpanID())
	})
}

func TestStartTraversalSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	m := NewSpanManager()

	_, span := m.StartTraversalSpan(context.Background(), "scan-1", "ancestors")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "scantrail.lineage.ancestors", spans[0].Name)
	assert.Equal(t, "scan-1", spanAttr(spans[0], "scan.id"))
	assert.Equal(t, "ancestors", spanAttr(spans[0], "lineage.direction"))
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	m := NewSpanManager()

	t.Run("nil error sets OK status", func(t *testing.T) {
		exporter.Reset()

		_, span := m.StartStoreSpan(context.Background(), "store_event")
		m.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
	})

	t.Run("error is recorded with Error status", func(t *testing.T) {
		exporter.Reset()

		_, span := m.StartStoreSpan(context.Background(), "store_event")
		m.EndSpanWithError(span, errors.New("disk full"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, "disk full", spans[0].Status.Description)
		require.Len(t, spans[0].Events, 1, "RecordError adds an exception event")
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.EndSpanWithError(nil, errors.New("ignored"))
		})
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	m := NewSpanManager()

	t.Run("adds event to recording span", func(t *testing.T) {
		exporter.Reset()

		ctx, span := m.StartScanSpan(context.Background(), "scan-1", "example.com")
		m.AddSpanEvent(ctx, "frontier expanded",
			attribute.Int("round", 2),
			attribute.Int("frontier_size", 17),
		)
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		require.Len(t, spans[0].Events, 1)
		assert.Equal(t, "frontier expanded", spans[0].Events[0].Name)
	})

	t.Run("no recording span is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.AddSpanEvent(context.Background(), "ignored")
		})
	})
}
