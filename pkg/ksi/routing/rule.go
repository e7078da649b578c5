// Package routing turns dispatched events into derived events through
// declarative transformer rules. A Table holds the rules; a Dispatcher
// matches each event against the table, gates every match on its
// condition, builds the target payload from the rule's mapping, and
// emits the result synchronously, asynchronously, or after a delay.
package routing

import (
	"time"

	"github.com/durapensa/ksi-go/pkg/ksi/errors"
	"github.com/durapensa/ksi-go/pkg/ksi/event"
	"github.com/durapensa/ksi-go/pkg/ksi/expr"
)

// Rule is a declarative transformer: events whose name matches
// SourcePattern and whose payload satisfies Condition produce a derived
// TargetEvent whose data comes from Mapping (or the whole source
// payload when PassThrough is set).
//
// All matching rules on an event fire, ordered by descending Priority
// with declaration order breaking ties. Matching is fan-out, not
// first-match-wins.
type Rule struct {
	// Name uniquely identifies the rule within a table.
	Name string `json:"name" yaml:"name"`

	// SourcePattern is an exact event name or a glob over the
	// namespaced segments ("completion:*", "*").
	SourcePattern string `json:"source_pattern" yaml:"source_pattern"`

	// TargetEvent is the name of the derived event.
	TargetEvent string `json:"target_event" yaml:"target_event"`

	// Mapping builds the derived event's data. String values may
	// contain ${var} placeholders resolved against the source event's
	// data, context, and computed values (_timestamp, _event_name,
	// _event_id, _source). A value that is exactly one placeholder
	// keeps the resolved value's type.
	Mapping map[string]any `json:"mapping,omitempty" yaml:"mapping,omitempty"`

	// PassThrough copies the entire source payload instead of
	// resolving Mapping.
	PassThrough bool `json:"pass_through,omitempty" yaml:"pass_through,omitempty"`

	// Condition gates the rule. Empty means always fire.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Async emits the derived event through the dispatcher's async
	// queue instead of inline.
	Async bool `json:"async,omitempty" yaml:"async,omitempty"`

	// DelaySeconds schedules the derived event after a delay.
	// Implies asynchronous emission.
	DelaySeconds float64 `json:"delay_seconds,omitempty" yaml:"delay_seconds,omitempty"`

	// Priority orders evaluation among rules matching the same event.
	// Higher values fire first.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Delay returns DelaySeconds as a duration.
func (r Rule) Delay() time.Duration {
	return time.Duration(r.DelaySeconds * float64(time.Second))
}

// Validate rejects malformed rules at load/add time.
func (r Rule) Validate() error {
	if r.Name == "" {
		return &errors.InvalidRuleError{Rule: r.Name, Field: "name", Message: "rule name is required"}
	}
	if err := event.ValidatePattern(r.SourcePattern); err != nil {
		return &errors.InvalidRuleError{Rule: r.Name, Field: "source_pattern", Message: err.Error()}
	}
	if err := event.ValidateName(r.TargetEvent); err != nil {
		return &errors.InvalidRuleError{Rule: r.Name, Field: "target_event", Message: err.Error()}
	}
	if r.PassThrough && len(r.Mapping) > 0 {
		return &errors.InvalidRuleError{Rule: r.Name, Field: "mapping", Message: "pass_through and mapping are mutually exclusive"}
	}
	if r.Condition != "" {
		if err := expr.Valid(r.Condition); err != nil {
			return &errors.InvalidRuleError{Rule: r.Name, Field: "condition", Message: err.Error()}
		}
	}
	if r.DelaySeconds < 0 {
		return &errors.InvalidRuleError{Rule: r.Name, Field: "delay_seconds", Message: "delay must not be negative"}
	}
	// An unconditional rule whose target matches its own source
	// retriggers itself on every hop and can only stop at the hop
	// limit. Reject it up front.
	if r.Condition == "" && event.MatchPattern(r.SourcePattern, r.TargetEvent) {
		return &errors.InvalidRuleError{Rule: r.Name, Field: "target_event", Message: "rule unconditionally retriggers itself"}
	}
	return nil
}
