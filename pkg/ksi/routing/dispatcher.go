package routing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/durapensa/ksi-go/pkg/ksi/errors"
	"github.com/durapensa/ksi-go/pkg/ksi/event"
	"github.com/durapensa/ksi-go/pkg/ksi/eventlog"
	"github.com/durapensa/ksi-go/pkg/ksi/expr"
	"github.com/durapensa/ksi-go/pkg/ksi/observability"
	"github.com/durapensa/ksi-go/pkg/ksi/template"
)

// Observer receives every dispatched event, after logging and before
// rule transformation. The subscription manager implements this.
type Observer interface {
	OnEvent(evt event.Event)
}

// DispatcherConfig configures dispatch behavior.
type DispatcherConfig struct {
	// MaxHops bounds recursive rule fan-out. An event whose hop count
	// reaches the limit is rejected. Default: 10.
	MaxHops int

	// AsyncBuffer is the capacity of the async emission queue.
	// Default: 256.
	AsyncBuffer int

	// AsyncWorkers is the number of goroutines draining the async
	// queue. Default: 4.
	AsyncWorkers int

	// Evaluator gates rule conditions. Default: a fail-open evaluator
	// with the built-in predicates.
	Evaluator *expr.Evaluator

	// Log receives every dispatched event (optional). Append failures
	// are logged and dispatch continues.
	Log eventlog.Store

	// Observer is forwarded every dispatched event (optional).
	Observer Observer

	// Logger for dispatch diagnostics (optional).
	Logger *slog.Logger

	// Metrics records dispatch counters and latency. Default: no-op.
	Metrics observability.MetricsRecorder

	// Spans traces dispatches. Default: no-op.
	Spans observability.SpanManager
}

// Dispatch defaults.
const (
	DefaultMaxHops      = 10
	DefaultAsyncBuffer  = 256
	DefaultAsyncWorkers = 4
)

// Dispatcher routes every event through the routing table, producing
// derived events inline, asynchronously, or after a delay.
//
// Dispatch reads hold a shared gate that Pause acquires exclusively, so
// a paused dispatcher accepts no new events until Resume. Checkpoint
// create/restore use this to snapshot consistent state.
type Dispatcher struct {
	table    *Table
	eval     *expr.Evaluator
	expander *template.Expander
	log      eventlog.Store
	observer Observer
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	maxHops  int

	pauseMu sync.RWMutex

	asyncCh chan event.Event
	wg      sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	timers   map[int]*time.Timer
	timerSeq int
}

// NewDispatcher creates a dispatcher over a routing table and starts
// its async workers. Call Close to stop them.
func NewDispatcher(table *Table, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = DefaultMaxHops
	}
	if cfg.AsyncBuffer <= 0 {
		cfg.AsyncBuffer = DefaultAsyncBuffer
	}
	if cfg.AsyncWorkers <= 0 {
		cfg.AsyncWorkers = DefaultAsyncWorkers
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = expr.New(expr.WithLogger(cfg.Logger))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}

	d := &Dispatcher{
		table:    table,
		eval:     cfg.Evaluator,
		expander: template.NewExpander(),
		log:      cfg.Log,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		spans:    cfg.Spans,
		maxHops:  cfg.MaxHops,
		asyncCh:  make(chan event.Event, cfg.AsyncBuffer),
		timers:   make(map[int]*time.Timer),
	}

	for i := 0; i < cfg.AsyncWorkers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Table returns the routing table the dispatcher consults.
func (d *Dispatcher) Table() *Table {
	return d.table
}

// Dispatch routes one event: appends it to the log, forwards it to the
// observer, and fires every matching rule. Synchronous rules emit
// before Dispatch returns; async and delayed rules emit independently.
//
// Blocks while the dispatcher is paused.
func (d *Dispatcher) Dispatch(ctx context.Context, evt event.Event) error {
	d.pauseMu.RLock()
	defer d.pauseMu.RUnlock()
	return d.process(ctx, evt)
}

// Pause blocks new event acceptance until Resume. In-flight dispatches
// complete first.
func (d *Dispatcher) Pause() {
	d.pauseMu.Lock()
}

// Resume lifts a Pause.
func (d *Dispatcher) Resume() {
	d.pauseMu.Unlock()
}

// process routes one event. Callers hold the pause gate shared;
// synchronous rule recursion stays inside the same hold so a dispatch
// sees one consistent rule set end to end.
func (d *Dispatcher) process(ctx context.Context, evt event.Event) error {
	if err := event.ValidateName(evt.Name); err != nil {
		return err
	}
	if evt.Hops >= d.maxHops {
		d.metrics.RecordDrop(ctx, "max_hops")
		observability.LogHopLimit(d.logger, evt.Name, evt.Hops, d.maxHops)
		return &errors.RoutingDepthError{EventName: evt.Name, Hops: evt.Hops, MaxHops: d.maxHops}
	}

	ctx, span := d.spans.StartDispatchSpan(ctx, evt.Name, evt.ID)
	start := time.Now()
	observability.LogDispatch(d.logger, evt.ID, evt.Name, evt.Hops)

	if d.log != nil {
		if err := d.log.Append(ctx, evt); err != nil && d.logger != nil {
			d.logger.Warn("event log append failed",
				slog.String("event_id", evt.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if d.observer != nil {
		d.observer.OnEvent(evt)
	}

	var firstErr error
	derived := 0
	for _, rule := range d.table.Match(evt.Name) {
		if rule.Condition != "" && !d.eval.Check(rule.Condition, evt.Data, evt.Context) {
			continue
		}

		data, err := d.buildPayload(rule, evt)
		if err != nil {
			if d.logger != nil {
				d.logger.Warn("rule mapping failed",
					slog.String("rule", rule.Name),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		child := event.NewFromParent(evt, rule.TargetEvent, data)
		observability.LogRuleFired(d.logger, rule.Name, evt.Name, rule.TargetEvent)
		derived++

		switch {
		case rule.DelaySeconds > 0:
			d.schedule(rule.Delay(), child)
		case rule.Async:
			d.enqueueAsync(ctx, child)
		default:
			// A depth rejection fails this chain but sibling rules
			// still fire.
			if err := d.process(ctx, child); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	d.metrics.RecordDispatch(ctx, evt.Name, time.Since(start), derived, firstErr)
	d.spans.EndSpanWithError(span, firstErr)
	observability.LogDispatchComplete(d.logger, evt.ID, float64(time.Since(start).Milliseconds()), derived)
	return firstErr
}

// buildPayload produces the derived event's data for one rule.
func (d *Dispatcher) buildPayload(rule Rule, evt event.Event) (map[string]any, error) {
	if rule.PassThrough {
		return evt.Clone().Data, nil
	}
	if len(rule.Mapping) == 0 {
		return map[string]any{}, nil
	}
	return d.expander.ResolveMap(rule.Mapping, templateVars(evt))
}

// templateVars assembles the variable scope for mapping resolution:
// source data, source context, then computed values.
func templateVars(evt event.Event) map[string]any {
	vars := make(map[string]any, len(evt.Data)+len(evt.Context)+4)
	for k, v := range evt.Data {
		vars[k] = v
	}
	for k, v := range evt.Context {
		vars[k] = v
	}
	vars["_timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	vars["_event_name"] = evt.Name
	vars["_event_id"] = evt.ID
	vars["_source"] = evt.Source
	return vars
}

// enqueueAsync hands an event to the async workers without blocking.
// A full queue drops the event with a metric.
func (d *Dispatcher) enqueueAsync(ctx context.Context, evt event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.asyncCh <- evt:
	default:
		d.metrics.RecordDrop(ctx, "async_overflow")
		if d.logger != nil {
			d.logger.Warn("async queue full, event dropped",
				slog.String("event_name", evt.Name),
			)
		}
	}
}

// schedule emits an event through the async queue after a delay.
// Pending timers are cancelled on Close.
func (d *Dispatcher) schedule(delay time.Duration, evt event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	id := d.timerSeq
	d.timerSeq++
	d.timers[id] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, id)
		d.mu.Unlock()
		d.enqueueAsync(context.Background(), evt)
	})
}

// worker drains the async queue. Re-enters through Dispatch so paused
// state also gates async emission.
func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for evt := range d.asyncCh {
		if err := d.Dispatch(context.Background(), evt); err != nil && d.logger != nil {
			d.logger.Warn("async dispatch failed",
				slog.String("event_name", evt.Name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Close cancels pending delayed events, stops the async workers, and
// waits for them to drain. Idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
	close(d.asyncCh)
	d.mu.Unlock()

	d.wg.Wait()
}
