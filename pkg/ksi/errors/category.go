// Package errors provides the error taxonomy and recovery helpers for
// the event engine.
//
// The package implements a layered error handling approach:
//   - Typed errors: one struct per failure class in the taxonomy
//   - Categorization: classify errors as transient or permanent
//   - Retry: handle transient failures with exponential backoff
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: delivery timeouts, temporary network issues.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: invalid rule definitions, malformed conditions,
	// cancelled contexts.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Categorize determines the category of an error.
//
// Delivery errors are transient (timeouts and connection drops both
// clear on their own or trip the circuit breaker). Everything else in
// the taxonomy is a configuration or administrative failure where a
// retry cannot change the outcome.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var categorized *CategorizedError
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	var delivery *DeliveryError
	if errors.As(err, &delivery) {
		return CategoryTransient
	}

	var checkpointIO *CheckpointIOError
	if errors.As(err, &checkpointIO) {
		return CategoryTransient
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryPermanent
	}

	return CategoryPermanent
}
