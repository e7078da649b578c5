package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// testLogger returns a logger writing to the returned buffer at debug level.
func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, &buf
}

func TestEnrichLogger(t *testing.T) {
	logger, buf := testLogger()

	enriched := EnrichLogger(logger, "ev-1", "agent:message", "agent_1")
	enriched.Info("test message")

	out := buf.String()
	assert.Contains(t, out, "event_id=ev-1")
	assert.Contains(t, out, "event_name=agent:message")
	assert.Contains(t, out, "source=agent_1")
}

func TestEnrichLogger_NilLogger(t *testing.T) {
	assert.Nil(t, EnrichLogger(nil, "ev-1", "agent:message", "agent_1"))
}

func TestLogFunctions_NilLoggerSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		LogDispatch(nil, "ev-1", "agent:message", 0)
		LogDispatchComplete(nil, "ev-1", 1.5, 2)
		LogRuleFired(nil, "rule", "a:b", "c:d")
		LogHopLimit(nil, "a:b", 10, 10)
		LogDeliveryError(nil, "sub-1", "obs-1", errors.New("x"))
		LogDrop(nil, "sub-1", "rate_limit")
		LogBreakerTransition(nil, "sub-1", "closed", "open")
		LogCheckpoint(nil, "ckpt-1", 100)
		LogCheckpointError(nil, "ckpt-1", "save", errors.New("x"))
	})
}

func TestLogDispatch(t *testing.T) {
	logger, buf := testLogger()

	LogDispatch(logger, "ev-1", "agent:message", 3)

	out := buf.String()
	assert.Contains(t, out, "dispatching event")
	assert.Contains(t, out, "hops=3")
}

func TestLogBreakerTransition(t *testing.T) {
	logger, buf := testLogger()

	LogBreakerTransition(logger, "sub-1", "closed", "open")

	out := buf.String()
	assert.Contains(t, out, "circuit breaker transition")
	assert.Contains(t, out, "from=closed")
	assert.Contains(t, out, "to=open")
	assert.True(t, strings.Contains(out, "level=INFO"))
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	elapsed := done()
	assert.GreaterOrEqual(t, elapsed, 0.0)
}
