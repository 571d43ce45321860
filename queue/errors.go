package queue

import (
	"errors"
	"fmt"
)

var (
	ErrNilMessage     = errors.New("nil message")
	ErrClosed         = errors.New("queue is shut down")
	ErrAlreadyStarted = errors.New("queue already started")
	ErrUnknownEntry   = errors.New("unknown queue id")

	// ErrDenied marks an admission refused by policy.
	ErrDenied = errors.New("denied by policy")
	// ErrDuplicate marks an admission whose id is already known.
	ErrDuplicate = errors.New("duplicate message id")
	// ErrInternal marks faults inside the queue, such as a record that cannot
	// be encoded or a panicking backend. They are never retried.
	ErrInternal = errors.New("internal error")
)

// AdmissionError reports a message that was not queued.
type AdmissionError struct {
	MessageID string
	Reason    string
	Err       error
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("message %s not admitted: %s", e.MessageID, e.Reason)
}

func (e *AdmissionError) Unwrap() error {
	return e.Err
}

// Denied reports whether the policy refused the message.
func (e *AdmissionError) Denied() bool {
	return errors.Is(e.Err, ErrDenied)
}
