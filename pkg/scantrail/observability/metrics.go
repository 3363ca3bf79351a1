package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records scantrail metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEventStored records one stored event with its write latency
	// and error status.
	RecordEventStored(ctx context.Context, eventType string, duration time.Duration, err error)

	// RecordTraversal records a completed lineage traversal with its
	// direction, frontier round count and total duration.
	RecordTraversal(ctx context.Context, direction string, rounds int, duration time.Duration)

	// RecordProducerError records a producer failure.
	RecordProducerError(ctx context.Context, module string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	eventsStored    metric.Int64Counter
	storeLatency    metric.Float64Histogram
	storeErrors     metric.Int64Counter
	traversals      metric.Int64Counter
	traversalRounds metric.Int64Histogram
	producerErrors  metric.Int64Counter
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
	meter := otel.Meter("scantrail")

	eventsStored, err := meter.Int64Counter("scantrail.store.events",
		metric.WithDescription("Number of events stored"),
	)
	if err != nil {
		return nil, err
	}

	storeLatency, err := meter.Float64Histogram("scantrail.store.latency_ms",
		metric.WithDescription("Event store write latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	storeErrors, err := meter.Int64Counter("scantrail.store.errors",
		metric.WithDescription("Number of event store write errors"),
	)
	if err != nil {
		return nil, err
	}

	traversals, err := meter.Int64Counter("scantrail.lineage.traversals",
		metric.WithDescription("Number of lineage traversals"),
	)
	if err != nil {
		return nil, err
	}

	traversalRounds, err := meter.Int64Histogram("scantrail.lineage.rounds",
		metric.WithDescription("Frontier rounds per lineage traversal"),
	)
	if err != nil {
		return nil, err
	}

	producerErrors, err := meter.Int64Counter("scantrail.producer.errors",
		metric.WithDescription("Number of producer failures"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		eventsStored:    eventsStored,
		storeLatency:    storeLatency,
		storeErrors:     storeErrors,
		traversals:      traversals,
		traversalRounds: traversalRounds,
		producerErrors:  producerErrors,
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

// RecordEventStored records one stored event.
func (m *otelMetrics) RecordEventStored(ctx context.Context, eventType string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("event_type", eventType),
	}

	m.eventsStored.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.storeLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.storeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordTraversal records a lineage traversal.
func (m *otelMetrics) RecordTraversal(ctx context.Context, direction string, rounds int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("direction", direction),
	}
	m.traversals.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.traversalRounds.Record(ctx, int64(rounds), metric.WithAttributes(attrs...))
}

// RecordProducerError records a producer failure.
func (m *otelMetrics) RecordProducerError(ctx context.Context, module string) {
	m.producerErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("module", module),
	))
}
