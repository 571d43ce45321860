package queue

import (
	"errors"

	"github.com/tailored-agentic-units/relay/routing"
)

type Outcome string

const (
	OutcomeQueued    Outcome = "queued"
	OutcomeDelivered Outcome = "delivered"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Result is what callers of Send, Wait and Broadcast receive. Blocked means
// the policy refused the message; Failed means delivery was attempted (or
// the message was malformed) and did not succeed; TimedOut means the caller
// stopped waiting while the entry was still pending.
type Result struct {
	Outcome  Outcome      `json:"outcome"`
	QueueID  string       `json:"queue_id,omitempty"`
	Attempts int          `json:"attempts"`
	Route    routing.Kind `json:"route,omitempty"`
	Strategy string       `json:"strategy,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

// Success reports whether the message was accepted and has not failed.
func (r Result) Success() bool {
	return r.Outcome == OutcomeQueued || r.Outcome == OutcomeDelivered
}

func (r Result) Blocked() bool {
	return r.Outcome == OutcomeBlocked
}

func (r Result) Delivered() bool {
	return r.Outcome == OutcomeDelivered
}

func resultOf(e Entry) Result {
	r := Result{
		QueueID:  e.ID,
		Attempts: e.Attempts,
		Route:    e.Route,
		Strategy: e.Strategy,
		Reason:   e.Reason,
	}
	switch e.Status {
	case StatusDelivered:
		r.Outcome = OutcomeDelivered
	case StatusFailed:
		r.Outcome = OutcomeFailed
	case StatusBlocked:
		r.Outcome = OutcomeBlocked
	default:
		r.Outcome = OutcomeQueued
	}
	return r
}

func timedOut(e Entry, reason string) Result {
	r := resultOf(e)
	r.Outcome = OutcomeTimedOut
	r.Reason = reason
	return r
}

func rejected(id string, err error) Result {
	r := Result{Outcome: OutcomeFailed, QueueID: id, Reason: err.Error()}
	var admission *AdmissionError
	if errors.As(err, &admission) {
		r.Reason = admission.Reason
		if admission.Denied() {
			r.Outcome = OutcomeBlocked
		}
	}
	return r
}
