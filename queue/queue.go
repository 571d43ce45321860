package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/tailored-agentic-units/relay/backend"
	"github.com/tailored-agentic-units/relay/config"
	"github.com/tailored-agentic-units/relay/journal"
	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/policy"
	"github.com/tailored-agentic-units/relay/routing"
	"github.com/tailored-agentic-units/relay/strategy"
)

// Enforcer gates admission. *policy.Enforcer satisfies it.
type Enforcer interface {
	Enforce(ctx context.Context, msg *messaging.Message) policy.Decision
}

// Planner assigns a strategy plan. *strategy.Coordinator satisfies it.
type Planner interface {
	Coordinate(ctx context.Context, msg *messaging.Message) (strategy.Plan, error)
}

// Router picks route kinds and records their performance.
// *routing.Analyzer satisfies it.
type Router interface {
	Select(ctx context.Context, msg *messaging.Message, requested []routing.Strategy, failed map[routing.Kind]bool) routing.Decision
	UpdateRoutePerformance(key string, kind routing.Kind, latency time.Duration, success bool)
}

type Option func(*Queue)

func WithEnforcer(e Enforcer) Option {
	return func(q *Queue) { q.enforcer = e }
}

func WithPlanner(p Planner) Option {
	return func(q *Queue) { q.planner = p }
}

func WithRouter(r Router) Option {
	return func(q *Queue) { q.router = r }
}

// WithJournal archives every terminal entry to store.
func WithJournal(store journal.Store) Option {
	return func(q *Queue) { q.journal = store }
}

func WithObserver(o observability.Observer) Option {
	return func(q *Queue) { q.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// Queue owns every admitted entry from admission to its terminal state.
type Queue struct {
	cfg     config.QueueConfig
	backend backend.Backend

	enforcer Enforcer
	planner  Planner
	router   Router
	journal  journal.Store
	observer observability.Observer
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	lanes   map[string]*lane
	seq     uint64
	closed  bool
	cancel  context.CancelFunc

	terminal *lru.Cache[string, Entry]
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	sendMu   sync.Mutex
	metrics  *Metrics

	wake    chan struct{}
	started atomic.Bool
	done    chan struct{}
	workers sync.WaitGroup
}

// New creates a Queue delivering through be. Zero fields of cfg take their
// defaults. Optional collaborators left unset are absent: no policy gate,
// the standard plan and the direct route.
func New(cfg config.QueueConfig, be backend.Backend, opts ...Option) (*Queue, error) {
	if be == nil {
		return nil, fmt.Errorf("queue requires a delivery backend")
	}

	merged := config.DefaultQueueConfig()
	merged.Merge(&cfg)

	observer, err := observability.ResolveObservers(merged.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	terminal, err := lru.New[string, Entry](merged.RetainTerminal)
	if err != nil {
		return nil, fmt.Errorf("failed to create terminal cache: %w", err)
	}

	q := &Queue{
		cfg:      merged,
		backend:  be,
		observer: observer,
		logger:   slog.Default(),
		entries:  make(map[string]*entry),
		lanes:    make(map[string]*lane),
		terminal: terminal,
		sem:      semaphore.NewWeighted(int64(merged.MaxConcurrent)),
		metrics:  NewMetrics(),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	if merged.DispatchRate > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(merged.DispatchRate), merged.DispatchBurst)
	}

	for _, opt := range opts {
		opt(q)
	}

	return q, nil
}

// Enqueue admits msg and returns its queue id without waiting for delivery.
// A nil message returns ErrNilMessage; an invalid, denied or duplicate
// message returns an *AdmissionError and creates no entry.
func (q *Queue) Enqueue(ctx context.Context, msg *messaging.Message) (string, error) {
	if msg == nil {
		return "", ErrNilMessage
	}

	if err := msg.Validate(); err != nil {
		return "", &AdmissionError{MessageID: msg.ID, Reason: err.Error(), Err: err}
	}

	if q.enforcer != nil {
		if decision := q.enforcer.Enforce(ctx, msg); !decision.Allowed {
			q.metrics.RecordBlocked()
			q.emit(ctx, EventBlocked, observability.LevelInfo, "queue.Enqueue", map[string]any{
				"message_id": msg.ID,
				"recipient":  msg.To,
				"reason":     decision.Reason,
			})
			return "", &AdmissionError{MessageID: msg.ID, Reason: decision.Reason, Err: ErrDenied}
		}
	}

	plan, err := q.plan(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("%w: plan %s: %v", ErrInternal, msg.ID, err)
	}

	e := newEntry(msg.Clone(), plan, time.Now())
	e.setRoute(q.route(ctx, e))

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrClosed
	}
	if _, live := q.entries[msg.ID]; live || q.terminal.Contains(msg.ID) {
		q.mu.Unlock()
		return "", &AdmissionError{MessageID: msg.ID, Reason: ErrDuplicate.Error(), Err: ErrDuplicate}
	}
	q.seq++
	e.seq = q.seq
	q.entries[msg.ID] = e
	l, ok := q.lanes[msg.To]
	if !ok {
		l = &lane{}
		q.lanes[msg.To] = l
	}
	l.push(e)
	q.mu.Unlock()

	q.metrics.RecordEnqueued()
	q.emit(ctx, EventEnqueue, observability.LevelVerbose, "queue.Enqueue", map[string]any{
		"message_id":           msg.ID,
		"recipient":            msg.To,
		"priority":             string(msg.Priority),
		"strategy":             plan.Strategy,
		observability.KeyRoute: string(e.currentRoute()),
	})
	q.signal()

	return msg.ID, nil
}

// Status returns a snapshot of the entry with the given id.
func (q *Queue) Status(id string) (Entry, bool) {
	q.mu.Lock()
	e, live := q.entries[id]
	q.mu.Unlock()

	if live {
		return e.snapshot(), true
	}
	return q.terminal.Get(id)
}

// Wait blocks until the entry is terminal, timeout elapses or ctx ends. A
// non-positive timeout only inspects the current state.
func (q *Queue) Wait(ctx context.Context, id string, timeout time.Duration) Result {
	q.mu.Lock()
	e, live := q.entries[id]
	q.mu.Unlock()

	if !live {
		if snap, ok := q.terminal.Get(id); ok {
			return resultOf(snap)
		}
		return Result{Outcome: OutcomeFailed, QueueID: id, Reason: ErrUnknownEntry.Error()}
	}

	if timeout <= 0 {
		select {
		case <-e.done:
			return resultOf(e.snapshot())
		default:
			return timedOut(e.snapshot(), "not yet terminal")
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.done:
		return resultOf(e.snapshot())
	case <-timer.C:
		return timedOut(e.snapshot(), fmt.Sprintf("timed out after %v", timeout))
	case <-ctx.Done():
		return timedOut(e.snapshot(), ctx.Err().Error())
	}
}

// WaitForDelivery reports whether the entry was delivered within timeout.
func (q *Queue) WaitForDelivery(ctx context.Context, id string, timeout time.Duration) bool {
	return q.Wait(ctx, id, timeout).Delivered()
}

// Send enqueues msg and waits up to timeout for its outcome. When no worker
// is running, delivery is driven on the caller's goroutine.
func (q *Queue) Send(ctx context.Context, msg *messaging.Message, timeout time.Duration) Result {
	id, err := q.Enqueue(ctx, msg)
	if err != nil {
		if msg == nil {
			return Result{Outcome: OutcomeFailed, Reason: err.Error()}
		}
		return rejected(msg.ID, err)
	}

	if !q.started.Load() {
		q.Process(ctx)
	}
	return q.Wait(ctx, id, timeout)
}

// Broadcast enqueues one broadcast message per recipient. Each result is
// either Queued or the reason the message was not admitted.
func (q *Queue) Broadcast(ctx context.Context, from, content string, recipients []string, priority messaging.Priority) []Result {
	results := make([]Result, 0, len(recipients))
	admitted := 0
	template := messaging.NewBroadcast(from, "", content).Priority(priority).Build()

	for _, to := range recipients {
		msg := template.Readdress(to)

		id, err := q.Enqueue(ctx, msg)
		if err != nil {
			q.logger.WarnContext(
				ctx,
				"broadcast recipient not admitted",
				slog.String("from", from),
				slog.String("to", to),
				slog.String("error", err.Error()),
			)
			results = append(results, rejected(msg.ID, err))
			continue
		}

		admitted++
		snap, _ := q.Status(id)
		results = append(results, Result{
			Outcome:  OutcomeQueued,
			QueueID:  id,
			Route:    snap.Route,
			Strategy: snap.Strategy,
		})
	}

	q.logger.DebugContext(
		ctx,
		"broadcast enqueued",
		slog.String("from", from),
		slog.Int("recipients", len(recipients)),
		slog.Int("admitted", admitted),
	)

	return results
}

func (q *Queue) Metrics() MetricsSnapshot {
	snap := q.metrics.Snapshot()
	q.mu.Lock()
	snap.Pending = int64(len(q.entries))
	q.mu.Unlock()
	return snap
}

// Start runs the delivery loop on its own goroutine until ctx ends or
// Shutdown is called.
func (q *Queue) Start(ctx context.Context) error {
	if !q.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		cancel()
		return ErrClosed
	}
	q.cancel = cancel
	q.mu.Unlock()

	go q.run(runCtx)
	return nil
}

// Process delivers ready entries on the caller's goroutine until none is
// ready, and returns how many it delivered or failed.
func (q *Queue) Process(ctx context.Context) int {
	processed := 0
	for ctx.Err() == nil {
		e := q.next()
		if e == nil {
			return processed
		}
		if err := q.sem.Acquire(ctx, 1); err != nil {
			q.requeue(e)
			return processed
		}
		q.deliver(ctx, e)
		q.sem.Release(1)
		processed++
	}
	return processed
}

// Shutdown stops admission, stops the worker and waits up to timeout for
// in-flight deliveries. Entries still waiting stay queued.
func (q *Queue) Shutdown(timeout time.Duration) error {
	q.mu.Lock()
	q.closed = true
	cancel := q.cancel
	q.mu.Unlock()

	q.logger.Debug("shutting down queue", slog.Int64("pending", q.Metrics().Pending))

	if cancel == nil {
		return nil
	}
	cancel()

	stopped := make(chan struct{})
	go func() {
		<-q.done
		q.workers.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("queue shutdown timeout after %v", timeout)
	}
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)

	for {
		if err := q.sem.Acquire(ctx, 1); err != nil {
			return
		}

		e := q.next()
		if e == nil {
			q.sem.Release(1)
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			}
			continue
		}

		q.workers.Add(1)
		go func() {
			defer q.workers.Done()
			defer q.sem.Release(1)
			q.deliver(ctx, e)
		}()
	}
}

// next takes the best ready entry from the idle lanes and marks its lane
// busy.
func (q *Queue) next() *entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		best     *entry
		bestLane *lane
	)
	for _, l := range q.lanes {
		if l.busy {
			continue
		}
		if h := l.head(); h != nil && (best == nil || before(h, best)) {
			best, bestLane = h, l
		}
	}
	if best == nil {
		return nil
	}

	bestLane.pop()
	bestLane.busy = true
	return best
}

func (q *Queue) requeue(e *entry) {
	q.mu.Lock()
	if l, ok := q.lanes[e.msg.To]; ok {
		l.pushFront(e)
		l.busy = false
	}
	q.mu.Unlock()
	e.requeued()
	q.signal()
}

// release frees the recipient's lane once e is finished.
func (q *Queue) release(e *entry) {
	q.mu.Lock()
	if l, ok := q.lanes[e.msg.To]; ok {
		l.busy = false
		if l.empty() {
			delete(q.lanes, e.msg.To)
		}
	}
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) plan(ctx context.Context, msg *messaging.Message) (strategy.Plan, error) {
	plan := strategy.Plan{
		Strategy:          strategy.Standard,
		RulesApplied:      []string{},
		EstimatedDelivery: strategy.Estimate(strategy.Standard),
	}

	if q.planner != nil {
		p, err := q.planner.Coordinate(ctx, msg)
		if err != nil {
			return strategy.Plan{}, err
		}
		plan = p
	}

	if plan.Routing.RetryAttempts <= 0 {
		plan.Routing.RetryAttempts = q.cfg.MaxAttempts
	}
	if plan.Routing.Timeout <= 0 {
		plan.Routing.Timeout = q.cfg.DeliveryTimeout
	}
	return plan, nil
}

func (q *Queue) route(ctx context.Context, e *entry) routing.Kind {
	if q.router == nil {
		return routing.KindDirect
	}
	return q.router.Select(ctx, e.msg, e.plan.Routing.Optimizations, e.failedRoutes()).Kind
}

// finish moves e to its terminal state, retains its snapshot and archives
// it.
func (q *Queue) finish(ctx context.Context, e *entry, status Status, reason string) {
	e.finish(status, reason, time.Now())
	snap := e.snapshot()

	q.mu.Lock()
	q.terminal.Add(snap.ID, snap)
	delete(q.entries, snap.ID)
	q.mu.Unlock()

	data := map[string]any{
		"message_id":           snap.ID,
		"recipient":            e.msg.To,
		"attempts":             snap.Attempts,
		observability.KeyRoute: string(snap.Route),
		"strategy":             snap.Strategy,
	}

	if status == StatusDelivered {
		q.metrics.RecordDelivered()
		q.emit(ctx, EventDelivered, observability.LevelInfo, "queue.deliver", data)
	} else {
		q.metrics.RecordFailed()
		data["reason"] = reason
		q.emit(ctx, EventFailed, observability.LevelWarning, "queue.deliver", data)
	}

	if q.journal != nil {
		if err := q.journal.Save(context.WithoutCancel(ctx), journalEntry(snap)); err != nil {
			q.logger.ErrorContext(
				ctx,
				"failed to archive queue entry",
				slog.String("message_id", snap.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func journalEntry(snap Entry) journal.Entry {
	return journal.Entry{
		ID:         snap.ID,
		Record:     messaging.ToRecord(snap.Message),
		Status:     string(snap.Status),
		Attempts:   snap.Attempts,
		Route:      string(snap.Route),
		Strategy:   snap.Strategy,
		Reason:     snap.Reason,
		EnqueuedAt: snap.EnqueuedAt,
		FinishedAt: snap.FinishedAt,
	}
}

func (q *Queue) emit(ctx context.Context, eventType observability.EventType, level observability.Level, source string, data map[string]any) {
	q.observer.OnEvent(ctx, observability.NewEvent(eventType, level, source, data))
}

// IsAdmissionError reports whether err is an *AdmissionError.
func IsAdmissionError(err error) bool {
	var admission *AdmissionError
	return errors.As(err, &admission)
}
