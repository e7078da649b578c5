package eventlog_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durapensa/ksi-go/pkg/ksi/event"
	"github.com/durapensa/ksi-go/pkg/ksi/eventlog"
)

// storeFactories lets every test run against both backends.
func storeFactories(t *testing.T) map[string]func(t *testing.T) eventlog.Store {
	return map[string]func(t *testing.T) eventlog.Store{
		"memory": func(t *testing.T) eventlog.Store {
			return eventlog.NewMemoryStore(0)
		},
		"sqlite": func(t *testing.T) eventlog.Store {
			store, err := eventlog.NewSQLiteStore(":memory:", 0)
			require.NoError(t, err)
			return store
		},
	}
}

func TestStore_QueryByTargetAndPattern(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				evt := event.New("test:event", "agent_b", map[string]any{"i": i})
				require.NoError(t, store.Append(ctx, evt))
			}
			require.NoError(t, store.Append(ctx, event.New("other:event", "agent_b", nil)))
			require.NoError(t, store.Append(ctx, event.New("test:event", "agent_c", nil)))

			// Events matching test:* from agent_b, even though no
			// subscription ever existed.
			results, err := store.Query(ctx, eventlog.Query{
				Target:   "agent_b",
				Patterns: []string{"test:*"},
				Limit:    10,
			})
			require.NoError(t, err)
			assert.Len(t, results, 5)
			for _, evt := range results {
				assert.Equal(t, "test:event", evt.Name)
				assert.Equal(t, "agent_b", evt.Source)
			}
		})
	}
}

func TestStore_QueryNewestFirst(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				evt := event.New("test:event", "a", map[string]any{"n": float64(i)})
				evt.Timestamp = time.Now().Add(time.Duration(i) * time.Second)
				require.NoError(t, store.Append(ctx, evt))
			}

			results, err := store.Query(ctx, eventlog.Query{Target: "a"})
			require.NoError(t, err)
			require.Len(t, results, 3)
			assert.Equal(t, float64(2), results[0].Data["n"], "newest first")
			assert.Equal(t, float64(0), results[2].Data["n"])

			oldest, err := store.Query(ctx, eventlog.Query{Target: "a", OldestFirst: true})
			require.NoError(t, err)
			assert.Equal(t, float64(0), oldest[0].Data["n"])
		})
	}
}

func TestStore_QuerySinceAndLimit(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			base := time.Now().UTC()
			for i := 0; i < 10; i++ {
				evt := event.New("test:event", "a", map[string]any{"n": float64(i)})
				evt.Timestamp = base.Add(time.Duration(i) * time.Minute)
				require.NoError(t, store.Append(ctx, evt))
			}

			results, err := store.Query(ctx, eventlog.Query{
				Target: "a",
				Since:  base.Add(5 * time.Minute),
			})
			require.NoError(t, err)
			assert.Len(t, results, 5)

			limited, err := store.Query(ctx, eventlog.Query{Target: "a", Limit: 3})
			require.NoError(t, err)
			assert.Len(t, limited, 3)
		})
	}
}

func TestMemoryStore_Retention(t *testing.T) {
	store := eventlog.NewMemoryStore(5)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		require.NoError(t, store.Append(ctx, event.New("test:event", "a", map[string]any{"n": i})))
	}

	assert.Equal(t, 5, store.Len(), "retention must evict oldest entries")

	results, err := store.Query(ctx, eventlog.Query{Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 11, results[0].Data["n"], "newest entry survives")
}

func TestSQLiteStore_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")

	store1, err := eventlog.NewSQLiteStore(dbPath, 0)
	require.NoError(t, err)
	require.NoError(t, store1.Append(context.Background(), event.New("test:event", "a", nil)))
	require.NoError(t, store1.Close())

	store2, err := eventlog.NewSQLiteStore(dbPath, 0)
	require.NoError(t, err)
	defer store2.Close()

	results, err := store2.Query(context.Background(), eventlog.Query{})
	require.NoError(t, err)
	assert.Len(t, results, 1, "event log must survive reopen")
}

func TestStore_ClosedReturnsError(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Close())

			err := store.Append(context.Background(), event.New("test:event", "a", nil))
			assert.ErrorIs(t, err, eventlog.ErrStoreClosed)

			_, err = store.Query(context.Background(), eventlog.Query{})
			assert.ErrorIs(t, err, eventlog.ErrStoreClosed)
		})
	}
}

func TestSQLiteStore_PatternPrefilter(t *testing.T) {
	store, err := eventlog.NewSQLiteStore(":memory:", 0)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	names := []string{"completion:result", "completion:error", "agent:started"}
	for i, name := range names {
		evt := event.New(name, fmt.Sprintf("agent_%d", i), nil)
		require.NoError(t, store.Append(ctx, evt))
	}

	results, err := store.Query(ctx, eventlog.Query{Patterns: []string{"completion:*"}})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = store.Query(ctx, eventlog.Query{Patterns: []string{"*:error"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "completion:error", results[0].Name)
}
