// Package observability provides structured logging, metrics, and
// distributed tracing for scantrail.
//
// Logging uses slog from the Go standard library; metrics and tracing use
// OpenTelemetry. Everything is opt-in and has a no-op implementation, so the
// core never requires a configured provider.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds scan context to a logger.
// Returns a new logger with scan_id and module fields.
func EnrichLogger(logger *slog.Logger, scanID, module string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("scan_id", scanID),
		slog.String("module", module),
	)
}

// LogScanStart logs the start of a scan.
func LogScanStart(logger *slog.Logger, scanID, target string) {
	if logger == nil {
		return
	}
	logger.Info("scan starting",
		slog.String("scan_id", scanID),
		slog.String("target", target),
	)
}

// LogScanEnd logs scan completion with its final status.
func LogScanEnd(logger *slog.Logger, scanID, status string, durationMs float64, events int) {
	if logger == nil {
		return
	}
	logger.Info("scan ended",
		slog.String("scan_id", scanID),
		slog.String("status", status),
		slog.Float64("duration_ms", durationMs),
		slog.Int("events_stored", events),
	)
}

// LogEventStored logs a stored event. The logger should already carry scan
// and module context; see EnrichLogger.
func LogEventStored(logger *slog.Logger, eventType string) {
	if logger == nil {
		return
	}
	logger.Debug("event stored",
		slog.String("type", eventType),
	)
}

// LogProducerError logs a producer failing on one delivery. The logger should
// already carry scan and module context; see EnrichLogger.
func LogProducerError(logger *slog.Logger, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Error("producer failed",
		slog.String("type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogProducerLatched logs a producer entering its permanent error state. The
// logger should already carry scan and module context; see EnrichLogger.
func LogProducerLatched(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Warn("producer latched into error state",
		slog.String("error", err.Error()),
	)
}

// LogStoreError logs a store operation failure.
func LogStoreError(logger *slog.Logger, op string, err error) {
	if logger == nil {
		return
	}
	logger.Error("store operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogTraversal logs a completed lineage traversal.
func LogTraversal(logger *slog.Logger, scanID, direction string, seeds, found int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("lineage traversal completed",
		slog.String("scan_id", scanID),
		slog.String("direction", direction),
		slog.Int("seed_hashes", seeds),
		slog.Int("events_found", found),
		slog.Float64("duration_ms", durationMs),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in
// milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
