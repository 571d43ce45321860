// Package backend defines the delivery capability the relay queue drives and
// the failure categories it uses to decide whether a failed send is retried.
//
// A Backend performs one physical send. It may block for the whole send and
// may fail transiently (retry) or permanently (give up). Backends signal a
// permanent failure by returning an error that wraps ErrPermanent; any other
// error, and a false result with a nil error, is treated as transient.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/relay/messaging"
)

// Failure categories.
var (
	ErrPermanent = errors.New("permanent delivery failure")
	ErrTransient = errors.New("transient delivery failure")

	// ErrDestinationUnresolved reports that the recipient has no known destination.
	ErrDestinationUnresolved = fmt.Errorf("%w: destination unresolved", ErrPermanent)
	// ErrNoDestination reports that the backend has no destination configured at all.
	ErrNoDestination = fmt.Errorf("%w: no destination configured", ErrPermanent)
	// ErrSendFailed reports a send that may succeed if attempted again.
	ErrSendFailed = fmt.Errorf("%w: send failed", ErrTransient)
)

// Backend delivers a single message.
type Backend interface {
	Deliver(ctx context.Context, msg *messaging.Message) (bool, error)
}

// IsPermanent reports whether err belongs to the permanent category.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Func adapts a function to the Backend interface.
type Func func(ctx context.Context, msg *messaging.Message) (bool, error)

func (f Func) Deliver(ctx context.Context, msg *messaging.Message) (bool, error) {
	return f(ctx, msg)
}
