package queue

import "github.com/tailored-agentic-units/relay/observability"

const (
	EventEnqueue   observability.EventType = "queue.enqueue"
	EventBlocked   observability.EventType = "queue.blocked"
	EventAttempt   observability.EventType = "queue.attempt"
	EventRetry     observability.EventType = "queue.retry"
	EventDelivered observability.EventType = "queue.delivered"
	EventFailed    observability.EventType = "queue.failed"
)
