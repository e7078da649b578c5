// Package eventlog provides the append-only history of dispatched
// events.
//
// The log is independent of live subscriptions: retrospective queries
// work even when no subscription existed at the time an event was
// dispatched. Entries are subject to a retention policy (max entries
// for the memory backend, max rows for SQLite).
package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/durapensa/ksi-go/pkg/ksi/event"
)

// Store persists dispatched events. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append records a dispatched event.
	Append(ctx context.Context, evt event.Event) error

	// Query returns events matching the filter, newest-first by
	// default.
	Query(ctx context.Context, q Query) ([]event.Event, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Query filters the event log.
type Query struct {
	// Target filters by the emitting agent ("" or "*" matches all).
	Target string

	// Patterns filters by event-name globs (empty matches all).
	Patterns []string

	// Since restricts results to events at or after this time.
	// The zero value disables the bound.
	Since time.Time

	// Limit caps the number of results. Zero or negative means
	// DefaultQueryLimit.
	Limit int

	// OldestFirst reverses the default newest-first ordering.
	OldestFirst bool
}

// DefaultQueryLimit caps unbounded queries.
const DefaultQueryLimit = 100

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("event log closed")

// matches reports whether an event satisfies the query filter.
func (q Query) matches(evt event.Event) bool {
	if q.Target != "" && q.Target != "*" && evt.Source != q.Target {
		return false
	}
	if len(q.Patterns) > 0 && !event.MatchAny(q.Patterns, evt.Name) {
		return false
	}
	if !q.Since.IsZero() && evt.Timestamp.Before(q.Since) {
		return false
	}
	return true
}

// limit returns the effective result cap.
func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}
