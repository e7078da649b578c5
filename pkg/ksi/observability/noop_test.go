package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopMetrics_ImplementsInterface(t *testing.T) {
	var _ MetricsRecorder = NoopMetrics{}
}

func TestNoopMetrics_DoesNotPanic(t *testing.T) {
	m := NoopMetrics{}

	t.Run("RecordDispatch", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordDispatch(context.Background(), "agent:message", time.Millisecond, 1, nil)
			m.RecordDispatch(context.Background(), "", 0, 0, errors.New("test"))
		})
	})

	t.Run("RecordDelivery", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordDelivery(context.Background(), "sub-1", time.Millisecond, nil)
			m.RecordDelivery(nil, "", 0, errors.New("test"))
		})
	})

	t.Run("RecordDrop", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordDrop(context.Background(), "rate_limit")
		})
	})

	t.Run("RecordBreakerTransition", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordBreakerTransition(context.Background(), "sub-1", "closed", "open")
		})
	})

	t.Run("RecordCheckpoint", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordCheckpoint(context.Background(), "save", 1024)
		})
	})
}

func TestNoopSpanManager_ImplementsInterface(t *testing.T) {
	var _ SpanManager = NoopSpanManager{}
}

func TestNoopSpanManager_DoesNotPanic(t *testing.T) {
	sm := NoopSpanManager{}
	ctx := context.Background()

	t.Run("StartDispatchSpan", func(t *testing.T) {
		assert.NotPanics(t, func() {
			gotCtx, span := sm.StartDispatchSpan(ctx, "agent:message", "ev-1")
			assert.Equal(t, ctx, gotCtx)
			assert.NotNil(t, span)
		})
	})

	t.Run("StartDeliverySpan", func(t *testing.T) {
		assert.NotPanics(t, func() {
			gotCtx, span := sm.StartDeliverySpan(ctx, "sub-1")
			assert.Equal(t, ctx, gotCtx)
			assert.NotNil(t, span)
		})
	})

	t.Run("EndSpanWithError", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(noopSpan, nil)
			sm.EndSpanWithError(noopSpan, errors.New("test"))
			sm.EndSpanWithError(nil, nil)
		})
	})

	t.Run("AddSpanEvent", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.AddSpanEvent(ctx, "event", attribute.String("k", "v"))
		})
	})
}
