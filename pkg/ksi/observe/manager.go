package observe

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/durapensa/ksi-go/pkg/ksi/errors"
	"github.com/durapensa/ksi-go/pkg/ksi/event"
	"github.com/durapensa/ksi-go/pkg/ksi/expr"
	"github.com/durapensa/ksi-go/pkg/ksi/observability"
)

// Deliverer pushes an event to an observer. The server implements this
// over observer connections. A returned error or a context deadline
// counts as a circuit-breaker failure.
type Deliverer interface {
	Deliver(ctx context.Context, observerID string, evt event.Event) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, observerID string, evt event.Event) error

func (f DelivererFunc) Deliver(ctx context.Context, observerID string, evt event.Event) error {
	return f(ctx, observerID, evt)
}

// ManagerConfig configures subscription handling.
type ManagerConfig struct {
	// Deliverer pushes matched events to observers. Required for
	// delivery; a nil deliverer drops everything.
	Deliverer Deliverer

	// QueueSize bounds each subscription's delivery queue. On
	// overflow the oldest entry is dropped. Default: 128.
	QueueSize int

	// DeliveryTimeout bounds one delivery attempt. A timeout counts
	// as a breaker failure. Default: 5s.
	DeliveryTimeout time.Duration

	// BreakerThreshold is the consecutive-failure count that opens a
	// subscription's breaker. Default: 5.
	BreakerThreshold int

	// BreakerCooldown is how long an open breaker rejects deliveries
	// before permitting a probe. Default: 30s.
	BreakerCooldown time.Duration

	// Retry wraps each delivery with backoff so only an exhausted
	// attempt sequence counts against the breaker (optional, default
	// a single attempt).
	Retry *errors.RetryConfig

	// Evaluator gates filter conditions. Default: a fail-open
	// evaluator with the built-in predicates.
	Evaluator *expr.Evaluator

	// Logger for delivery diagnostics (optional).
	Logger *slog.Logger

	// Metrics records deliveries, drops, and breaker transitions.
	// Default: no-op.
	Metrics observability.MetricsRecorder

	// Spans traces deliveries. Default: no-op.
	Spans observability.SpanManager
}

// Manager defaults.
const (
	DefaultQueueSize        = 128
	DefaultDeliveryTimeout  = 5 * time.Second
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 30 * time.Second
)

// subscription pairs a record with its live delivery state. Breaker
// and rate-limit state never survive checkpoint restore.
type subscription struct {
	rec Record
	seq int

	stateMu sync.Mutex
	limiter *rateWindow
	brk     *breaker

	qmu   sync.Mutex
	queue chan event.Event

	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the live subscription table. It always starts empty; a
// plain process restart therefore wipes all subscriptions. Restore is
// the one path that rehydrates them.
type Manager struct {
	deliverer Deliverer
	eval      *expr.Evaluator
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	queueSize int
	timeout   time.Duration
	threshold int
	cooldown  time.Duration
	retry     *errors.RetryConfig

	mu     sync.RWMutex
	subs   map[string]*subscription
	seq    int
	closed bool
}

// NewManager creates an empty subscription manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = DefaultBreakerThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
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

	return &Manager{
		deliverer: cfg.Deliverer,
		eval:      cfg.Evaluator,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		spans:     cfg.Spans,
		queueSize: cfg.QueueSize,
		timeout:   cfg.DeliveryTimeout,
		threshold: cfg.BreakerThreshold,
		cooldown:  cfg.BreakerCooldown,
		retry:     cfg.Retry,
		subs:      make(map[string]*subscription),
	}
}

// Subscribe registers an observer on a target. Patterns must be
// non-empty valid event globs; target may be "*" to watch every
// source.
func (m *Manager) Subscribe(observer, target string, patterns []string, filter Filter) (Record, error) {
	rec := Record{
		SubscriptionID: uuid.NewString(),
		ObserverID:     observer,
		TargetID:       target,
		EventPatterns:  append([]string(nil), patterns...),
		Filter:         filter,
		CreatedAt:      time.Now().UTC(),
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Record{}, errors.ErrManagerClosed
	}
	m.insertLocked(rec)
	return rec, nil
}

// insertLocked creates the subscription's live state and starts its
// delivery worker. Caller holds m.mu.
func (m *Manager) insertLocked(rec Record) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		rec:    rec,
		seq:    m.seq,
		brk:    newBreaker(m.threshold, m.cooldown),
		queue:  make(chan event.Event, m.queueSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.seq++
	if rec.Filter.RateLimit != nil {
		s.limiter = newRateWindow(*rec.Filter.RateLimit)
	}
	m.subs[rec.SubscriptionID] = s
	go m.worker(ctx, s)
}

// List returns subscriptions in creation order, filtered by observer
// when one is given.
func (m *Manager) List(observer string) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := make([]*subscription, 0, len(m.subs))
	for _, s := range m.subs {
		if observer != "" && s.rec.ObserverID != observer {
			continue
		}
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })

	recs := make([]Record, len(subs))
	for i, s := range subs {
		recs[i] = s.rec
	}
	return recs
}

// Count returns the number of active subscriptions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Unsubscribe removes a subscription and cancels any in-flight
// delivery. Idempotent: an unknown id returns false with no error.
func (m *Manager) Unsubscribe(subscriptionID string) bool {
	m.mu.Lock()
	s, ok := m.subs[subscriptionID]
	if ok {
		delete(m.subs, subscriptionID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.cancel()
	<-s.done
	return true
}

// OnActorTerminated removes every subscription whose observer is the
// terminated actor and returns how many were removed.
//
// Cleanup is observer-side only: subscriptions watching the terminated
// actor as a target stay active so their observers can still query the
// event log for its final events and unsubscribe on their own terms.
func (m *Manager) OnActorTerminated(actorID string) int {
	m.mu.Lock()
	var removed []*subscription
	for id, s := range m.subs {
		if s.rec.ObserverID == actorID {
			removed = append(removed, s)
			delete(m.subs, id)
		}
	}
	m.mu.Unlock()

	for _, s := range removed {
		s.cancel()
		<-s.done
	}
	return len(removed)
}

// OnEvent routes a dispatched event to every matching subscription:
// rate limiter first, then circuit breaker, then the bounded queue.
// Never blocks and never errors; every skipped delivery is a metric.
func (m *Manager) OnEvent(evt event.Event) {
	ctx := context.Background()

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.subs {
		if !s.rec.matchesTarget(evt.Source) || !event.MatchAny(s.rec.EventPatterns, evt.Name) {
			continue
		}
		if s.rec.Filter.Condition != "" && !m.eval.Check(s.rec.Filter.Condition, evt.Data, evt.Context) {
			continue
		}

		now := time.Now()
		s.stateMu.Lock()
		if s.limiter != nil && !s.limiter.allow(now) {
			s.stateMu.Unlock()
			m.metrics.RecordDrop(ctx, "rate_limit")
			observability.LogDrop(m.logger, s.rec.SubscriptionID, "rate_limit")
			continue
		}
		ok, tr := s.brk.allow(now)
		s.stateMu.Unlock()
		m.noteTransition(ctx, s, tr)
		if !ok {
			m.metrics.RecordDrop(ctx, "breaker_open")
			observability.LogDrop(m.logger, s.rec.SubscriptionID, "breaker_open")
			continue
		}

		m.enqueue(ctx, s, evt)
	}
}

// enqueue adds an event to a subscription's queue, dropping the oldest
// entry on overflow.
func (m *Manager) enqueue(ctx context.Context, s *subscription, evt event.Event) {
	s.qmu.Lock()
	defer s.qmu.Unlock()

	select {
	case s.queue <- evt:
		return
	default:
	}

	select {
	case <-s.queue:
		m.metrics.RecordDrop(ctx, "queue_overflow")
		observability.LogDrop(m.logger, s.rec.SubscriptionID, "queue_overflow")
	default:
	}
	select {
	case s.queue <- evt:
	default:
	}
}

// worker drains one subscription's queue in order. A single worker per
// subscription preserves per (target, observer) delivery order.
func (m *Manager) worker(ctx context.Context, s *subscription) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-s.queue:
			m.deliver(ctx, s, evt)
		}
	}
}

// deliver makes one delivery attempt with timeout and optional retry,
// recording the outcome on the subscription's breaker.
func (m *Manager) deliver(ctx context.Context, s *subscription, evt event.Event) {
	if m.deliverer == nil {
		return
	}

	dctx, span := m.spans.StartDeliverySpan(ctx, s.rec.SubscriptionID)
	dctx, cancel := context.WithTimeout(dctx, m.timeout)
	defer cancel()

	start := time.Now()
	var err error
	if m.retry != nil {
		res := errors.WithRetryContext(dctx, *m.retry, func(c context.Context) (struct{}, error) {
			derr := m.deliverer.Deliver(c, s.rec.ObserverID, evt)
			if derr != nil {
				// Wrapped so the default retryable check
				// categorizes the failure as transient.
				derr = &errors.DeliveryError{
					SubscriptionID: s.rec.SubscriptionID,
					ObserverID:     s.rec.ObserverID,
					Err:            derr,
				}
			}
			return struct{}{}, derr
		})
		err = res.Err
	} else {
		err = m.deliverer.Deliver(dctx, s.rec.ObserverID, evt)
	}
	m.metrics.RecordDelivery(ctx, s.rec.SubscriptionID, time.Since(start), err)
	m.spans.EndSpanWithError(span, err)

	s.stateMu.Lock()
	var tr *transition
	if err != nil {
		tr = s.brk.recordFailure(time.Now())
	} else {
		tr = s.brk.recordSuccess()
	}
	s.stateMu.Unlock()
	m.noteTransition(ctx, s, tr)

	if err != nil {
		observability.LogDeliveryError(m.logger, s.rec.SubscriptionID, s.rec.ObserverID, &errors.DeliveryError{
			SubscriptionID: s.rec.SubscriptionID,
			ObserverID:     s.rec.ObserverID,
			Timeout:        dctx.Err() == context.DeadlineExceeded,
			Err:            err,
		})
	}
}

func (m *Manager) noteTransition(ctx context.Context, s *subscription, tr *transition) {
	if tr == nil {
		return
	}
	m.metrics.RecordBreakerTransition(ctx, s.rec.SubscriptionID, tr.from.String(), tr.to.String())
	observability.LogBreakerTransition(m.logger, s.rec.SubscriptionID, tr.from.String(), tr.to.String())
}

// BreakerState returns a subscription's current breaker position.
// Unknown ids report StateClosed and false.
func (m *Manager) BreakerState(subscriptionID string) (BreakerState, bool) {
	m.mu.RLock()
	s, ok := m.subs[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return StateClosed, false
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.brk.state, true
}

// Snapshot returns all subscription records in creation order, for
// checkpointing. Live breaker and rate-limit state is deliberately
// excluded.
func (m *Manager) Snapshot() []Record {
	return m.List("")
}

// Restore replaces the entire table with checkpointed records,
// preserving their ids and filters and resetting all delivery state.
// On validation error the table is left unchanged.
func (m *Manager) Restore(records []Record) error {
	for _, rec := range records {
		if rec.SubscriptionID == "" {
			return &errors.InvalidPatternError{Pattern: "", Message: "subscription id is required"}
		}
		if err := rec.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.ErrManagerClosed
	}
	old := make([]*subscription, 0, len(m.subs))
	for _, s := range m.subs {
		old = append(old, s)
	}
	m.subs = make(map[string]*subscription, len(records))
	m.seq = 0
	for _, rec := range records {
		m.insertLocked(rec)
	}
	m.mu.Unlock()

	for _, s := range old {
		s.cancel()
		<-s.done
	}
	return nil
}

// Close stops every delivery worker. The manager accepts no new
// subscriptions afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	subs := make([]*subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.subs = make(map[string]*subscription)
	m.mu.Unlock()

	for _, s := range subs {
		s.cancel()
		<-s.done
	}
}
