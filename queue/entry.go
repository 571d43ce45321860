package queue

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/routing"
	"github.com/tailored-agentic-units/relay/strategy"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusInFlight  Status = "in_flight"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
)

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusBlocked
}

// Entry is a point-in-time copy of a queue entry.
type Entry struct {
	ID            string             `json:"id"`
	Message       *messaging.Message `json:"message"`
	Status        Status             `json:"status"`
	Attempts      int                `json:"attempts"`
	Route         routing.Kind       `json:"route"`
	FailedRoutes  []routing.Kind     `json:"failed_routes,omitempty"`
	Strategy      string             `json:"strategy"`
	Reason        string             `json:"reason,omitempty"`
	EnqueuedAt    time.Time          `json:"enqueued_at"`
	LastAttemptAt time.Time          `json:"last_attempt_at,omitzero"`
	FinishedAt    time.Time          `json:"finished_at,omitzero"`
}

// entry is the queue-owned mutable state of one admitted message. Only the
// goroutine delivering it writes to it; mu lets Status read concurrently.
type entry struct {
	msg  *messaging.Message
	plan strategy.Plan
	key  string
	seq  uint64
	done chan struct{}

	mu            sync.Mutex
	status        Status
	attempts      int
	route         routing.Kind
	failed        map[routing.Kind]bool
	reason        string
	enqueuedAt    time.Time
	lastAttemptAt time.Time
	finishedAt    time.Time
}

func newEntry(msg *messaging.Message, plan strategy.Plan, now time.Time) *entry {
	return &entry{
		msg:        msg,
		plan:       plan,
		key:        routing.RouteKey(msg),
		done:       make(chan struct{}),
		status:     StatusQueued,
		failed:     make(map[routing.Kind]bool),
		enqueuedAt: now,
	}
}

// begin records the start of an attempt and returns its number.
func (e *entry) begin(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts++
	e.status = StatusInFlight
	e.lastAttemptAt = now
	return e.attempts
}

func (e *entry) setRoute(k routing.Kind) {
	e.mu.Lock()
	e.route = k
	e.mu.Unlock()
}

func (e *entry) currentRoute() routing.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.route
}

func (e *entry) markFailed(k routing.Kind) {
	e.mu.Lock()
	e.failed[k] = true
	e.mu.Unlock()
}

func (e *entry) failedRoutes() map[routing.Kind]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.failed)
}

// requeued returns an entry to the waiting state without counting an attempt.
func (e *entry) requeued() {
	e.mu.Lock()
	if !e.status.Terminal() {
		e.status = StatusQueued
	}
	e.mu.Unlock()
}

func (e *entry) finish(status Status, reason string, now time.Time) {
	e.mu.Lock()
	e.status = status
	e.reason = reason
	e.finishedAt = now
	e.mu.Unlock()
	close(e.done)
}

func (e *entry) snapshot() Entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	failed := slices.Collect(maps.Keys(e.failed))
	slices.Sort(failed)

	return Entry{
		ID:            e.msg.ID,
		Message:       e.msg,
		Status:        e.status,
		Attempts:      e.attempts,
		Route:         e.route,
		FailedRoutes:  failed,
		Strategy:      e.plan.Strategy,
		Reason:        e.reason,
		EnqueuedAt:    e.enqueuedAt,
		LastAttemptAt: e.lastAttemptAt,
		FinishedAt:    e.finishedAt,
	}
}

// lane holds the waiting entries of one recipient.
type lane struct {
	urgent  []*entry
	regular []*entry
	busy    bool
}

func (l *lane) push(e *entry) {
	if e.msg.IsUrgent() {
		l.urgent = append(l.urgent, e)
	} else {
		l.regular = append(l.regular, e)
	}
}

// pushFront restores an entry taken by next but never delivered.
func (l *lane) pushFront(e *entry) {
	if e.msg.IsUrgent() {
		l.urgent = slices.Insert(l.urgent, 0, e)
	} else {
		l.regular = slices.Insert(l.regular, 0, e)
	}
}

func (l *lane) head() *entry {
	if len(l.urgent) > 0 {
		return l.urgent[0]
	}
	if len(l.regular) > 0 {
		return l.regular[0]
	}
	return nil
}

func (l *lane) pop() {
	if len(l.urgent) > 0 {
		l.urgent = l.urgent[1:]
		return
	}
	l.regular = l.regular[1:]
}

func (l *lane) empty() bool {
	return len(l.urgent) == 0 && len(l.regular) == 0
}

// before orders entries urgent first, then by admission sequence.
func before(a, b *entry) bool {
	if a.msg.IsUrgent() != b.msg.IsUrgent() {
		return a.msg.IsUrgent()
	}
	return a.seq < b.seq
}
