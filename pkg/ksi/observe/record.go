// Package observe owns observer subscriptions: which observer watches
// which target for which event patterns, with per-subscription rate
// limiting, circuit breaking, and asynchronous ordered delivery.
//
// Subscription state is ephemeral by default. A Manager always starts
// empty; the only way state crosses a process boundary is an explicit
// checkpoint Snapshot and Restore.
package observe

import (
	"time"

	"github.com/durapensa/ksi-go/pkg/ksi/errors"
	"github.com/durapensa/ksi-go/pkg/ksi/event"
	"github.com/durapensa/ksi-go/pkg/ksi/expr"
)

// RateLimit caps deliveries to a subscription within a rolling window.
type RateLimit struct {
	// MaxEvents is the delivery cap per window.
	MaxEvents int `json:"max_events" yaml:"max_events"`

	// WindowSeconds is the rolling window length.
	WindowSeconds float64 `json:"window_seconds" yaml:"window_seconds"`
}

// Window returns WindowSeconds as a duration.
func (r RateLimit) Window() time.Duration {
	return time.Duration(r.WindowSeconds * float64(time.Second))
}

// Filter narrows which matched events a subscription delivers.
type Filter struct {
	// RateLimit caps delivery rate (optional).
	RateLimit *RateLimit `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// Condition gates delivery per event (optional).
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Record is one observer-to-target subscription. Records survive
// checkpoint restore byte-identically, including SubscriptionID.
type Record struct {
	SubscriptionID string    `json:"subscription_id"`
	ObserverID     string    `json:"observer_id"`
	TargetID       string    `json:"target_id"`
	EventPatterns  []string  `json:"event_patterns"`
	Filter         Filter    `json:"filter,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate rejects malformed subscription records.
func (r Record) Validate() error {
	if r.ObserverID == "" {
		return &errors.InvalidPatternError{Pattern: "", Message: "observer id is required"}
	}
	if r.TargetID == "" {
		return &errors.InvalidPatternError{Pattern: "", Message: "target id is required"}
	}
	if len(r.EventPatterns) == 0 {
		return &errors.InvalidPatternError{Pattern: "", Message: "at least one event pattern is required"}
	}
	for _, p := range r.EventPatterns {
		if err := event.ValidatePattern(p); err != nil {
			return &errors.InvalidPatternError{Pattern: p, Message: err.Error()}
		}
	}
	if r.Filter.Condition != "" {
		if err := expr.Valid(r.Filter.Condition); err != nil {
			return err
		}
	}
	if rl := r.Filter.RateLimit; rl != nil {
		if rl.MaxEvents <= 0 || rl.WindowSeconds <= 0 {
			return &errors.InvalidPatternError{Pattern: "", Message: "rate limit requires positive max_events and window_seconds"}
		}
	}
	return nil
}

// matchesTarget reports whether the record watches an event's source.
func (r Record) matchesTarget(source string) bool {
	return r.TargetID == "*" || r.TargetID == source
}
