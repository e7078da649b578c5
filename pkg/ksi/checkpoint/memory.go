package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps checkpoints in memory. Suitable for testing and
// for daemons that only need restore within one process lifetime.
//
// Snapshots are held serialized so a loaded checkpoint never aliases
// the saved one.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	infos  map[string]Info
	closed bool
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string][]byte),
		infos: make(map[string]Info),
	}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, cp Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.data[cp.CheckpointID] = raw
	s.infos[cp.CheckpointID] = Info{
		CheckpointID: cp.CheckpointID,
		Timestamp:    cp.Timestamp,
		Reason:       cp.Reason,
		Size:         int64(len(raw)),
	}
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, checkpointID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Checkpoint{}, ErrStoreClosed
	}
	raw, ok := s.data[checkpointID]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	infos := make([]Info, 0, len(s.infos))
	for _, info := range s.infos {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Timestamp.After(infos[j].Timestamp) })
	return infos, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.data, checkpointID)
	delete(s.infos, checkpointID)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
