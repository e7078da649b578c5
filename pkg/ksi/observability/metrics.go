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

// MetricsRecorder records event-engine metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDispatch records one event dispatch with the number of
	// derived events it produced.
	RecordDispatch(ctx context.Context, eventName string, duration time.Duration, derived int, err error)

	// RecordDelivery records one delivery attempt to an observer.
	RecordDelivery(ctx context.Context, subscriptionID string, duration time.Duration, err error)

	// RecordDrop records a silently suppressed outcome. Reasons:
	// "rate_limit", "queue_overflow", "breaker_open",
	// "async_overflow", "max_hops", "malformed_condition".
	RecordDrop(ctx context.Context, reason string)

	// RecordBreakerTransition records a circuit breaker state change.
	RecordBreakerTransition(ctx context.Context, subscriptionID, from, to string)

	// RecordCheckpoint records a checkpoint save or restore.
	RecordCheckpoint(ctx context.Context, op string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	dispatches         metric.Int64Counter
	dispatchLatency    metric.Float64Histogram
	dispatchErrors     metric.Int64Counter
	derivedEvents      metric.Int64Counter
	deliveries         metric.Int64Counter
	deliveryLatency    metric.Float64Histogram
	deliveryFailures   metric.Int64Counter
	drops              metric.Int64Counter
	breakerTransitions metric.Int64Counter
	checkpointSize     metric.Int64Histogram
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
	meter := otel.Meter("ksi")

	dispatches, err := meter.Int64Counter("ksi.dispatch.events",
		metric.WithDescription("Number of events dispatched"),
	)
	if err != nil {
		return nil, err
	}

	dispatchLatency, err := meter.Float64Histogram("ksi.dispatch.latency_ms",
		metric.WithDescription("Dispatch latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	dispatchErrors, err := meter.Int64Counter("ksi.dispatch.errors",
		metric.WithDescription("Number of dispatch errors"),
	)
	if err != nil {
		return nil, err
	}

	derivedEvents, err := meter.Int64Counter("ksi.dispatch.derived_events",
		metric.WithDescription("Number of derived events produced by routing rules"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("ksi.delivery.attempts",
		metric.WithDescription("Number of observer delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("ksi.delivery.latency_ms",
		metric.WithDescription("Observer delivery latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	deliveryFailures, err := meter.Int64Counter("ksi.delivery.failures",
		metric.WithDescription("Number of failed observer deliveries"),
	)
	if err != nil {
		return nil, err
	}

	drops, err := meter.Int64Counter("ksi.drops",
		metric.WithDescription("Number of silently dropped deliveries, by reason"),
	)
	if err != nil {
		return nil, err
	}

	breakerTransitions, err := meter.Int64Counter("ksi.breaker.transitions",
		metric.WithDescription("Number of circuit breaker state transitions"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("ksi.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		dispatches:         dispatches,
		dispatchLatency:    dispatchLatency,
		dispatchErrors:     dispatchErrors,
		derivedEvents:      derivedEvents,
		deliveries:         deliveries,
		deliveryLatency:    deliveryLatency,
		deliveryFailures:   deliveryFailures,
		drops:              drops,
		breakerTransitions: breakerTransitions,
		checkpointSize:     checkpointSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the
// provider before calling this function:
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

// RecordDispatch records an event dispatch.
func (m *otelMetrics) RecordDispatch(ctx context.Context, eventName string, duration time.Duration, derived int, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("event_name", eventName),
	}

	m.dispatches.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.dispatchLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if derived > 0 {
		m.derivedEvents.Add(ctx, int64(derived), metric.WithAttributes(attrs...))
	}
	if err != nil {
		m.dispatchErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordDelivery records a delivery attempt.
func (m *otelMetrics) RecordDelivery(ctx context.Context, subscriptionID string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("subscription_id", subscriptionID),
	}

	m.deliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.deliveryLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.deliveryFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordDrop records a silent drop.
func (m *otelMetrics) RecordDrop(ctx context.Context, reason string) {
	m.drops.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordBreakerTransition records a breaker state change.
func (m *otelMetrics) RecordBreakerTransition(ctx context.Context, subscriptionID, from, to string) {
	m.breakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("subscription_id", subscriptionID),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordCheckpoint records a checkpoint operation.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, op string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(
		attribute.String("operation", op),
	))
}
