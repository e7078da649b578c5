// Package checkpoint provides durable snapshots of routing and
// subscription state. A checkpoint captures the routing table and the
// subscription records, never the event log or live delivery state.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/durapensa/ksi-go/pkg/ksi/observe"
	"github.com/durapensa/ksi-go/pkg/ksi/routing"
)

// Checkpoint is one durable snapshot.
type Checkpoint struct {
	CheckpointID  string           `json:"checkpoint_id"`
	Timestamp     time.Time        `json:"timestamp"`
	Reason        string           `json:"reason"`
	Rules         []routing.Rule   `json:"rules"`
	Subscriptions []observe.Record `json:"subscriptions"`
}

// New assembles a checkpoint from live snapshots, assigning its id and
// timestamp.
func New(reason string, rules []routing.Rule, subscriptions []observe.Record) Checkpoint {
	return Checkpoint{
		CheckpointID:  uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Reason:        reason,
		Rules:         rules,
		Subscriptions: subscriptions,
	}
}

// Info provides checkpoint metadata without loading the snapshot.
type Info struct {
	CheckpointID string
	Timestamp    time.Time
	Reason       string
	Size         int64
}

// Store persists checkpoints. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save stores a checkpoint under its id.
	Save(ctx context.Context, cp Checkpoint) error

	// Load retrieves a checkpoint. Returns ErrNotFound if the id is
	// unknown.
	Load(ctx context.Context, checkpointID string) (Checkpoint, error)

	// List returns metadata for all checkpoints, newest first.
	List(ctx context.Context) ([]Info, error)

	// Delete removes a checkpoint. Unknown ids are a no-op.
	Delete(ctx context.Context, checkpointID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)
