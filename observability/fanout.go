package observability

import (
	"context"
	"log/slog"
)

// NoOpObserver discards all events.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}

// MultiObserver forwards each event to every wrapped observer in order. A
// panicking observer is logged and skipped so the remaining observers, and
// the delivery worker that emitted the event, keep running.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver wraps the non-nil observers. Nested MultiObservers are
// flattened.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{observers: make([]Observer, 0, len(observers))}
	for _, obs := range observers {
		switch o := obs.(type) {
		case nil:
		case *MultiObserver:
			m.observers = append(m.observers, o.observers...)
		default:
			m.observers = append(m.observers, o)
		}
	}
	return m
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		notify(ctx, obs, event)
	}
}

func (m *MultiObserver) Len() int {
	return len(m.observers)
}

func notify(ctx context.Context, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Default().ErrorContext(
				ctx,
				"observer panicked",
				slog.String("event", string(event.Type)),
				slog.Any("panic", r),
			)
		}
	}()
	obs.OnEvent(ctx, event)
}
