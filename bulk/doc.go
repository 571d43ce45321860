// Package bulk coordinates batches of messages.
//
// CoordinateBulk runs strategy selection and rule application for every
// message of a batch on a bounded worker pool and aggregates the outcome
// into a Report. Each message is independent: an error or panic while
// coordinating one message is recorded as a failed result and never aborts
// the rest of the batch.
//
// When a Dispatcher is attached, every successfully coordinated message is
// also handed to it (normally the relay queue). A policy denial from the
// dispatcher is counted as Blocked, not as a failure.
//
// The grouping helpers partition a batch by priority, kind or sender role
// for reporting. They have no effect on delivery.
package bulk
