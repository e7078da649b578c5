// Package daemon wires the routing table, dispatcher, subscription
// manager, event log, and checkpoint store into one engine and owns
// the administrative checkpoint/restore path.
package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/durapensa/ksi-go/pkg/ksi/checkpoint"
	kerrors "github.com/durapensa/ksi-go/pkg/ksi/errors"
	"github.com/durapensa/ksi-go/pkg/ksi/event"
	"github.com/durapensa/ksi-go/pkg/ksi/eventlog"
	"github.com/durapensa/ksi-go/pkg/ksi/expr"
	"github.com/durapensa/ksi-go/pkg/ksi/observability"
	"github.com/durapensa/ksi-go/pkg/ksi/observe"
	"github.com/durapensa/ksi-go/pkg/ksi/routing"
)

// Config assembles an Engine.
type Config struct {
	// Rules seeds the routing table at startup.
	Rules []routing.Rule

	// Log stores dispatched events. Required.
	Log eventlog.Store

	// Checkpoints stores snapshots. Required for checkpoint
	// operations.
	Checkpoints checkpoint.Store

	// Deliverer pushes events to observers (typically the server).
	Deliverer observe.Deliverer

	// FailClosed makes malformed conditions unsatisfied instead of
	// satisfied.
	FailClosed bool

	// MaxHops bounds routing recursion (0 means the dispatcher
	// default).
	MaxHops int

	// Manager tuning; zero values mean the manager defaults.
	QueueSize        int
	DeliveryTimeout  time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// DeliveryRetries is the attempt count per delivery before the
	// failure counts against the breaker (0 or 1 means a single
	// attempt).
	DeliveryRetries int

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
	Spans   observability.SpanManager
}

// Engine is the live event engine. Create one per process; it always
// starts with an empty subscription table.
type Engine struct {
	table       *routing.Table
	dispatcher  *routing.Dispatcher
	subs        *observe.Manager
	log         eventlog.Store
	checkpoints checkpoint.Store
	logger      *slog.Logger
	metrics     observability.MetricsRecorder
	started     time.Time
}

// New builds and starts an engine. Seed rules are validated; any bad
// rule fails startup.
func New(cfg Config) (*Engine, error) {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}

	policy := expr.FailOpen
	if cfg.FailClosed {
		policy = expr.FailClosed
	}
	metrics := cfg.Metrics
	eval := expr.New(
		expr.WithPolicy(policy),
		expr.WithLogger(cfg.Logger),
		expr.WithFailureHook(func(string, error) {
			metrics.RecordDrop(context.Background(), "malformed_condition")
		}),
	)

	table := routing.NewTable()
	for _, r := range cfg.Rules {
		if err := table.Add(r); err != nil {
			return nil, err
		}
	}

	var retry *kerrors.RetryConfig
	if cfg.DeliveryRetries > 1 {
		r := kerrors.DefaultRetry
		r.MaxAttempts = cfg.DeliveryRetries
		retry = &r
	}

	subs := observe.NewManager(observe.ManagerConfig{
		Deliverer:        cfg.Deliverer,
		QueueSize:        cfg.QueueSize,
		DeliveryTimeout:  cfg.DeliveryTimeout,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		Retry:            retry,
		Evaluator:        eval,
		Logger:           cfg.Logger,
		Metrics:          cfg.Metrics,
		Spans:            cfg.Spans,
	})

	dispatcher := routing.NewDispatcher(table, routing.DispatcherConfig{
		MaxHops:   cfg.MaxHops,
		Evaluator: eval,
		Log:       cfg.Log,
		Observer:  subs,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
		Spans:     cfg.Spans,
	})

	return &Engine{
		table:       table,
		dispatcher:  dispatcher,
		subs:        subs,
		log:         cfg.Log,
		checkpoints: cfg.Checkpoints,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		started:     time.Now(),
	}, nil
}

// Emit dispatches one event through the engine.
func (e *Engine) Emit(ctx context.Context, evt event.Event) error {
	return e.dispatcher.Dispatch(ctx, evt)
}

// Rules returns the routing table for administrative calls.
func (e *Engine) Rules() *routing.Table {
	return e.table
}

// Subscriptions returns the subscription manager for administrative
// calls.
func (e *Engine) Subscriptions() *observe.Manager {
	return e.subs
}

// Query reads the event log, independent of live subscriptions.
func (e *Engine) Query(ctx context.Context, q eventlog.Query) ([]event.Event, error) {
	return e.log.Query(ctx, q)
}

// CreateCheckpoint snapshots the routing table and subscription
// records to durable storage. Dispatch is paused for the duration so
// the snapshot is consistent. Storage failures surface as
// CheckpointIOError and leave in-memory state untouched.
func (e *Engine) CreateCheckpoint(ctx context.Context, reason string) (checkpoint.Checkpoint, error) {
	e.dispatcher.Pause()
	defer e.dispatcher.Resume()

	cp := checkpoint.New(reason, e.table.Snapshot(), e.subs.Snapshot())
	if err := e.checkpoints.Save(ctx, cp); err != nil {
		return checkpoint.Checkpoint{}, &kerrors.CheckpointIOError{
			CheckpointID: cp.CheckpointID,
			Op:           "save",
			Err:          err,
		}
	}

	size := int64(0)
	if raw, err := json.Marshal(cp); err == nil {
		size = int64(len(raw))
	}
	e.metrics.RecordCheckpoint(ctx, "save", size)
	observability.LogCheckpoint(e.logger, cp.CheckpointID, int(size))
	return cp, nil
}

// RestoreCheckpoint rehydrates routing rules and subscriptions
// verbatim from a stored snapshot, replacing the live tables. Dispatch
// is paused for the duration. On any failure the live tables keep
// their pre-restore contents.
func (e *Engine) RestoreCheckpoint(ctx context.Context, checkpointID string) error {
	cp, err := e.checkpoints.Load(ctx, checkpointID)
	if err != nil {
		return &kerrors.CheckpointIOError{CheckpointID: checkpointID, Op: "load", Err: err}
	}

	e.dispatcher.Pause()
	defer e.dispatcher.Resume()

	prevRules := e.table.Snapshot()
	if err := e.table.Replace(cp.Rules); err != nil {
		return err
	}
	if err := e.subs.Restore(cp.Subscriptions); err != nil {
		// Restore validates before mutating, so the subscription
		// table is untouched here; put the rules back too.
		_ = e.table.Replace(prevRules)
		return err
	}

	e.metrics.RecordCheckpoint(ctx, "restore", 0)
	if e.logger != nil {
		e.logger.Info("checkpoint restored",
			slog.String("checkpoint_id", checkpointID),
			slog.Int("rules", len(cp.Rules)),
			slog.Int("subscriptions", len(cp.Subscriptions)),
		)
	}
	return nil
}

// ListCheckpoints returns stored checkpoint metadata, newest first.
func (e *Engine) ListCheckpoints(ctx context.Context) ([]checkpoint.Info, error) {
	infos, err := e.checkpoints.List(ctx)
	if err != nil {
		return nil, &kerrors.CheckpointIOError{Op: "list", Err: err}
	}
	return infos, nil
}

// DeleteCheckpoint removes a stored checkpoint.
func (e *Engine) DeleteCheckpoint(ctx context.Context, checkpointID string) error {
	if err := e.checkpoints.Delete(ctx, checkpointID); err != nil {
		return &kerrors.CheckpointIOError{CheckpointID: checkpointID, Op: "delete", Err: err}
	}
	return nil
}

// OnActorTerminated removes the terminated actor's subscriptions and
// returns how many were removed.
func (e *Engine) OnActorTerminated(actorID string) int {
	return e.subs.OnActorTerminated(actorID)
}

// Health reports liveness and component counts.
func (e *Engine) Health() map[string]any {
	return map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(e.started).Seconds(),
		"rules":          e.table.Len(),
		"subscriptions":  e.subs.Count(),
	}
}

// Close stops dispatch and delivery workers. Stores are owned by the
// caller and closed separately.
func (e *Engine) Close() {
	e.dispatcher.Close()
	e.subs.Close()
}
