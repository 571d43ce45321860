package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tailored-agentic-units/relay/backend"
	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/routing"
)

// errDispatchCancelled marks an attempt stopped by the rate limiter before
// the backend was called. The entry goes back to its lane.
var errDispatchCancelled = errors.New("dispatch cancelled")

// linearBackOff waits step, 2*step, 3*step, ... between attempts.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

// deliver runs every attempt for e and records its terminal state.
func (q *Queue) deliver(ctx context.Context, e *entry) {
	defer q.release(e)

	if _, err := messaging.EncodeRecord(e.msg); err != nil {
		q.finish(ctx, e, StatusFailed, fmt.Sprintf("%v: %v", ErrInternal, err))
		return
	}

	_, err := backoff.Retry(
		ctx,
		func() (routing.Kind, error) {
			return q.attempt(ctx, e)
		},
		backoff.WithBackOff(&linearBackOff{step: q.cfg.RetryDelay}),
		backoff.WithMaxTries(uint(e.plan.Routing.RetryAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			q.metrics.RecordRetry()
			q.emit(ctx, EventRetry, observability.LevelWarning, "queue.deliver", map[string]any{
				"message_id": e.msg.ID,
				"attempt":    e.snapshot().Attempts,
				"wait_ms":    wait.Milliseconds(),
				"error":      err.Error(),
			})
		}),
	)

	if err != nil && ctx.Err() != nil && errors.Is(err, errDispatchCancelled) {
		q.requeue(e)
		return
	}
	if err != nil {
		q.finish(ctx, e, StatusFailed, err.Error())
		return
	}
	q.finish(ctx, e, StatusDelivered, "")
}

// attempt performs one backend call. Permanent and internal failures are
// wrapped with backoff.Permanent so they are not retried.
func (q *Queue) attempt(ctx context.Context, e *entry) (routing.Kind, error) {
	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			return e.currentRoute(), backoff.Permanent(fmt.Errorf("%w: %v", errDispatchCancelled, err))
		}
	}

	n := e.begin(time.Now())
	if n > 1 {
		e.setRoute(q.route(ctx, e))
	}
	route := e.currentRoute()

	inFlight := q.metrics.BeginDelivery()
	start := time.Now()
	ok, err := q.call(ctx, e)
	latency := time.Since(start)
	q.metrics.EndDelivery()

	success := ok && err == nil
	if q.router != nil {
		q.router.UpdateRoutePerformance(e.key, route, latency, success)
	}

	q.emit(ctx, EventAttempt, observability.LevelVerbose, "queue.attempt", map[string]any{
		"message_id":               e.msg.ID,
		"attempt":                  n,
		"success":                  success,
		observability.KeyRoute:     string(route),
		observability.KeyLatencyMS: float64(latency) / float64(time.Millisecond),
		observability.KeyInFlight:  inFlight,
	})

	if success {
		return route, nil
	}

	if err == nil {
		err = fmt.Errorf("%w: backend reported failure", backend.ErrSendFailed)
	}
	e.markFailed(route)

	q.logger.DebugContext(
		ctx,
		"delivery attempt failed",
		slog.String("message_id", e.msg.ID),
		slog.Int("attempt", n),
		slog.String("route", string(route)),
		slog.String("error", err.Error()),
	)

	if backend.IsPermanent(err) || errors.Is(err, ErrInternal) {
		return route, backoff.Permanent(err)
	}
	return route, err
}

// call invokes the backend once. The call is bounded by the plan timeout
// but is not cancelled by the queue context: a started send runs to
// completion.
func (q *Queue) call(ctx context.Context, e *entry) (ok bool, err error) {
	if q.cfg.SerializeBackend {
		q.sendMu.Lock()
		defer q.sendMu.Unlock()
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.plan.Routing.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("%w: backend panic: %v", ErrInternal, r)
		}
	}()

	return q.backend.Deliver(callCtx, e.msg)
}
