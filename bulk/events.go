package bulk

import "github.com/tailored-agentic-units/relay/observability"

const (
	EventBulkStart    observability.EventType = "bulk.start"
	EventBulkMessage  observability.EventType = "bulk.message"
	EventBulkComplete observability.EventType = "bulk.complete"
)
