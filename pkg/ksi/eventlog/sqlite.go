package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/durapensa/ksi-go/pkg/ksi/event"
)

// SQLiteStore persists the event log to SQLite. It is suitable for
// single-process production use.
type SQLiteStore struct {
	db      *sql.DB
	maxRows int
	mu      sync.RWMutex
	closed  bool

	appendsSincePrune int
}

// pruneInterval controls how many appends happen between retention
// sweeps.
const pruneInterval = 256

// NewSQLiteStore creates a SQLite event log at path (":memory:" for
// testing). maxRows bounds retention; 0 means DefaultMaxEntries.
func NewSQLiteStore(path string, maxRows int) (*SQLiteStore, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxEntries
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			hops INTEGER NOT NULL,
			data BLOB,
			context BLOB
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_source_name
		ON events(source, name)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db, maxRows: maxRows}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, evt event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	data, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	evtCtx, err := json.Marshal(evt.Context)
	if err != nil {
		return fmt.Errorf("marshal event context: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, name, source, timestamp, hops, data, context)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, evt.ID, evt.Name, evt.Source,
		evt.Timestamp.UTC().Format(time.RFC3339Nano), evt.Hops, data, evtCtx)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	s.appendsSincePrune++
	if s.appendsSincePrune >= pruneInterval {
		s.appendsSincePrune = 0
		if err := s.pruneLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// pruneLocked enforces the retention bound. Caller must hold s.mu.
func (s *SQLiteStore) pruneLocked(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM events
		WHERE seq <= (SELECT MAX(seq) FROM events) - ?
	`, s.maxRows)
	if err != nil {
		return fmt.Errorf("prune event log: %w", err)
	}
	return nil
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	query, args := buildQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	limit := q.limit()
	var results []event.Event
	for rows.Next() {
		var evt event.Event
		var timestamp string
		var data, evtCtx []byte
		if err := rows.Scan(&evt.ID, &evt.Name, &evt.Source, &timestamp, &evt.Hops, &data, &evtCtx); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &evt.Data); err != nil {
				return nil, fmt.Errorf("unmarshal event data: %w", err)
			}
		}
		if len(evtCtx) > 0 {
			if err := json.Unmarshal(evtCtx, &evt.Context); err != nil {
				return nil, fmt.Errorf("unmarshal event context: %w", err)
			}
		}

		// SQL prefilters by LIKE; the exact glob semantics are
		// re-checked here.
		if len(q.Patterns) > 0 && !event.MatchAny(q.Patterns, evt.Name) {
			continue
		}

		results = append(results, evt)
		if len(results) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return results, nil
}

// buildQuery translates a Query into SQL. Glob patterns become LIKE
// prefilters (trailing "*" maps to "%").
func buildQuery(q Query) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString(`SELECT id, name, source, timestamp, hops, data, context FROM events WHERE 1=1`)

	if q.Target != "" && q.Target != "*" {
		sb.WriteString(` AND source = ?`)
		args = append(args, q.Target)
	}
	if !q.Since.IsZero() {
		sb.WriteString(` AND timestamp >= ?`)
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}
	if len(q.Patterns) > 0 {
		sb.WriteString(` AND (`)
		for i, p := range q.Patterns {
			if i > 0 {
				sb.WriteString(` OR `)
			}
			sb.WriteString(`name LIKE ? ESCAPE '\'`)
			args = append(args, globToLike(p))
		}
		sb.WriteString(`)`)
	}

	if q.OldestFirst {
		sb.WriteString(` ORDER BY seq ASC`)
	} else {
		sb.WriteString(` ORDER BY seq DESC`)
	}

	return sb.String(), args
}

// globToLike converts an event-name glob to a LIKE pattern.
func globToLike(pattern string) string {
	replaced := strings.NewReplacer(`%`, `\%`, `_`, `\_`).Replace(pattern)
	return strings.ReplaceAll(replaced, "*", "%")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
