// Package event defines the core event type shared by the routing and
// observation subsystems.
//
// Events are named occurrences flowing between agent processes. Names
// are two-part namespaced strings ("domain:action", e.g.
// "completion:result"). Each event carries a data payload, a
// correlation context (originating agent, orchestration id, request
// id), and a hop count that bounds chains of derived events.
//
// Events are immutable once dispatched - any transformation creates a
// new event via NewFromParent.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a named, timestamped occurrence with a data payload and
// correlation context.
type Event struct {
	// ID is the unique event identifier (UUID).
	ID string `json:"id"`

	// Name is the two-part namespaced event name ("domain:action").
	Name string `json:"name"`

	// Source is the identifier of the agent that emitted the event.
	// Subscriptions match their target against this field.
	Source string `json:"source,omitempty"`

	// Data is the event payload.
	Data map[string]any `json:"data,omitempty"`

	// Context carries correlation identifiers: originating agent,
	// orchestration id, request id, and the ID of the event that
	// directly caused this one.
	Context map[string]any `json:"context,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Hops counts how many routing transformations produced this
	// event. Zero for events emitted directly by an agent.
	Hops int `json:"hops,omitempty"`
}

// Well-known context keys.
const (
	CtxCausationID     = "_causation_id"
	CtxCorrelationID   = "_correlation_id"
	CtxOrchestrationID = "_orchestration_id"
	CtxRequestID       = "_request_id"
)

// Option configures event creation.
type Option func(*Event)

// WithID sets a specific event ID (default: auto-generated UUID).
func WithID(id string) Option {
	return func(e *Event) {
		e.ID = id
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(e *Event) {
		e.Timestamp = t
	}
}

// WithContext merges the given keys into the event context.
func WithContext(ctx map[string]any) Option {
	return func(e *Event) {
		for k, v := range ctx {
			e.Context[k] = v
		}
	}
}

// WithContextValue sets a single context key.
func WithContextValue(key string, value any) Option {
	return func(e *Event) {
		e.Context[key] = value
	}
}

// New creates a new event with the given name, source, and payload.
//
// If no correlation ID is supplied via options, the event's own ID
// becomes the correlation root.
func New(name, source string, data map[string]any, opts ...Option) Event {
	e := Event{
		ID:        uuid.New().String(),
		Name:      name,
		Source:    source,
		Data:      data,
		Context:   make(map[string]any),
		Timestamp: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&e)
	}

	if _, ok := e.Context[CtxCorrelationID]; !ok {
		e.Context[CtxCorrelationID] = e.ID
	}

	return e
}

// NewFromParent creates a derived event caused by a parent event.
//
// The child inherits the parent's correlation context, records the
// parent's ID as its causation, and carries hops = parent.Hops + 1 so
// the dispatcher can bound transformation chains.
func NewFromParent(parent Event, name string, data map[string]any, opts ...Option) Event {
	ctx := make(map[string]any, len(parent.Context)+1)
	for k, v := range parent.Context {
		ctx[k] = v
	}
	ctx[CtxCausationID] = parent.ID

	e := New(name, parent.Source, data, WithContext(ctx))
	e.Hops = parent.Hops + 1

	for _, opt := range opts {
		opt(&e)
	}

	return e
}

// CorrelationID returns the correlation ID from the event context, or
// the event's own ID if none is set.
func (e Event) CorrelationID() string {
	if v, ok := e.Context[CtxCorrelationID].(string); ok && v != "" {
		return v
	}
	return e.ID
}

// CausationID returns the ID of the event that directly caused this
// one, or empty for root events.
func (e Event) CausationID() string {
	if v, ok := e.Context[CtxCausationID].(string); ok {
		return v
	}
	return ""
}

// Clone returns a deep-enough copy of the event: the data and context
// maps are copied one level so callers cannot mutate a dispatched
// event's top-level fields. Nested values are shared.
func (e Event) Clone() Event {
	out := e
	if e.Data != nil {
		out.Data = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			out.Data[k] = v
		}
	}
	if e.Context != nil {
		out.Context = make(map[string]any, len(e.Context))
		for k, v := range e.Context {
			out.Context[k] = v
		}
	}
	return out
}

// Marshal serializes the event to JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an event from JSON.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
