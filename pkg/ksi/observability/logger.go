// Package observability provides structured logging, metrics, and
// distributed tracing for the event engine.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds event context to a logger.
// Returns a new logger with event_id, event_name, and source fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, ev.ID, ev.Name, ev.Source)
//	enriched.Info("dispatching") // includes event_id, event_name, source
func EnrichLogger(logger *slog.Logger, eventID, eventName, source string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event_id", eventID),
		slog.String("event_name", eventName),
		slog.String("source", source),
	)
}

// LogDispatch logs the start of an event dispatch.
func LogDispatch(logger *slog.Logger, eventID, eventName string, hops int) {
	if logger == nil {
		return
	}
	logger.Debug("dispatching event",
		slog.String("event_id", eventID),
		slog.String("event_name", eventName),
		slog.Int("hops", hops),
	)
}

// LogDispatchComplete logs successful dispatch completion.
func LogDispatchComplete(logger *slog.Logger, eventID string, durationMs float64, derived int) {
	if logger == nil {
		return
	}
	logger.Debug("dispatch completed",
		slog.String("event_id", eventID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("derived_events", derived),
	)
}

// LogRuleFired logs a routing rule producing a derived event.
func LogRuleFired(logger *slog.Logger, ruleName, sourceEvent, targetEvent string) {
	if logger == nil {
		return
	}
	logger.Debug("routing rule fired",
		slog.String("rule", ruleName),
		slog.String("source_event", sourceEvent),
		slog.String("target_event", targetEvent),
	)
}

// LogHopLimit logs an event halted at the hop limit.
func LogHopLimit(logger *slog.Logger, eventName string, hops, maxHops int) {
	if logger == nil {
		return
	}
	logger.Warn("event exceeded hop limit",
		slog.String("event_name", eventName),
		slog.Int("hops", hops),
		slog.Int("max_hops", maxHops),
	)
}

// LogDeliveryError logs a failed observer delivery.
func LogDeliveryError(logger *slog.Logger, subscriptionID, observerID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("delivery failed",
		slog.String("subscription_id", subscriptionID),
		slog.String("observer_id", observerID),
		slog.String("error", err.Error()),
	)
}

// LogDrop logs a silently dropped delivery.
func LogDrop(logger *slog.Logger, subscriptionID, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("delivery dropped",
		slog.String("subscription_id", subscriptionID),
		slog.String("reason", reason),
	)
}

// LogBreakerTransition logs a circuit breaker state change.
func LogBreakerTransition(logger *slog.Logger, subscriptionID, from, to string) {
	if logger == nil {
		return
	}
	logger.Info("circuit breaker transition",
		slog.String("subscription_id", subscriptionID),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, checkpointID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Info("checkpoint saved",
		slog.String("checkpoint_id", checkpointID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs checkpoint failure (non-fatal).
func LogCheckpointError(logger *slog.Logger, checkpointID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("checkpoint_id", checkpointID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
