package eventlog

import (
	"context"
	"sync"

	"github.com/durapensa/ksi-go/pkg/ksi/event"
)

// MemoryStore is an in-memory event log. Suitable for testing and
// single-process deployments that do not need history across restarts.
type MemoryStore struct {
	mu         sync.RWMutex
	events     []event.Event
	maxEntries int
	closed     bool
}

// DefaultMaxEntries bounds the memory backend's retention.
const DefaultMaxEntries = 10000

// NewMemoryStore creates an in-memory event log retaining at most
// maxEntries events (0 means DefaultMaxEntries). The oldest entries
// are evicted first.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{maxEntries: maxEntries}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, evt event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.events = append(s.events, evt.Clone())
	if len(s.events) > s.maxEntries {
		// Copy down rather than re-slicing so evicted entries are
		// released to the GC.
		overflow := len(s.events) - s.maxEntries
		copy(s.events, s.events[overflow:])
		s.events = s.events[:s.maxEntries]
	}
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, q Query) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	limit := q.limit()
	results := make([]event.Event, 0, min(limit, 16))

	if q.OldestFirst {
		for _, evt := range s.events {
			if q.matches(evt) {
				results = append(results, evt.Clone())
				if len(results) >= limit {
					break
				}
			}
		}
		return results, nil
	}

	for i := len(s.events) - 1; i >= 0; i-- {
		if q.matches(s.events[i]) {
			results = append(results, s.events[i].Clone())
			if len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

// Len returns the number of retained events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.events = nil
	return nil
}
