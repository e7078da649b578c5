package errors

import (
	"errors"
	"fmt"
)

// ErrManagerClosed indicates an operation on a closed subscription
// manager.
var ErrManagerClosed = errors.New("subscription manager closed")

// MalformedConditionError indicates a condition expression failed to
// parse or evaluate. Depending on the evaluator's policy the condition
// is treated as satisfied (fail-open) or unsatisfied (fail-closed);
// either way the error is logged, never raised to the event producer.
type MalformedConditionError struct {
	Expr    string
	Message string
	Pos     int
}

// Error implements the error interface.
func (e *MalformedConditionError) Error() string {
	if e.Pos > 0 {
		return fmt.Sprintf("malformed condition %q at position %d: %s", e.Expr, e.Pos, e.Message)
	}
	return fmt.Sprintf("malformed condition %q: %s", e.Expr, e.Message)
}

// InvalidRuleError indicates a transformer rule was rejected at load or
// add time. Rules are validated eagerly so a bad definition is a
// configuration error, never a silent runtime surprise.
type InvalidRuleError struct {
	Rule    string
	Field   string
	Message string
}

// Error implements the error interface.
func (e *InvalidRuleError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid rule %q: %s: %s", e.Rule, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid rule %q: %s", e.Rule, e.Message)
}

// InvalidPatternError indicates an empty or malformed event pattern in
// a subscription request.
type InvalidPatternError struct {
	Pattern string
	Message string
}

// Error implements the error interface.
func (e *InvalidPatternError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Message)
	}
	return fmt.Sprintf("invalid pattern: %s", e.Message)
}

// DeliveryError indicates an event could not be delivered to an
// observer. Timeouts are marked so retry and breaker logic can treat
// them as transient.
type DeliveryError struct {
	SubscriptionID string
	ObserverID     string
	Timeout        bool
	Err            error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("delivery to observer %s timed out (subscription %s)", e.ObserverID, e.SubscriptionID)
	}
	return fmt.Sprintf("delivery to observer %s failed (subscription %s): %v", e.ObserverID, e.SubscriptionID, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// CheckpointIOError indicates checkpoint storage I/O failed. The
// in-memory routing and subscription tables are left untouched when
// this is returned.
type CheckpointIOError struct {
	CheckpointID string
	Op           string
	Err          error
}

// Error implements the error interface.
func (e *CheckpointIOError) Error() string {
	if e.CheckpointID != "" {
		return fmt.Sprintf("checkpoint %s: %s: %v", e.CheckpointID, e.Op, e.Err)
	}
	return fmt.Sprintf("checkpoint %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CheckpointIOError) Unwrap() error {
	return e.Err
}

// RoutingDepthError indicates a chain of derived events exceeded the
// configured hop limit and was cut off.
type RoutingDepthError struct {
	EventName string
	Hops      int
	MaxHops   int
}

// Error implements the error interface.
func (e *RoutingDepthError) Error() string {
	return fmt.Sprintf("event %s exceeded max routing depth (%d hops, limit %d)", e.EventName, e.Hops, e.MaxHops)
}
