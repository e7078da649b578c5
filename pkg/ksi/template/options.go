package template

// MissingAction specifies how to handle unresolved placeholders.
type MissingAction int

const (
	// MissingKeep keeps the placeholder as-is when the variable is not
	// found. This is the default behavior.
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the placeholder with an empty string (or
	// nil for whole-value placeholders).
	MissingEmpty

	// MissingError returns an error when a variable is not found.
	MissingError
)

// Option configures an Expander.
type Option func(*Expander)

// WithMissingAction sets how unresolved placeholders are handled.
func WithMissingAction(action MissingAction) Option {
	return func(e *Expander) {
		e.missingAction = action
	}
}
