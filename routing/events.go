package routing

import "github.com/tailored-agentic-units/relay/observability"

const (
	EventRouteSelect observability.EventType = "route.select"
	EventRouteRecord observability.EventType = "route.record"
	EventRouteAdd    observability.EventType = "route.add"
	EventRouteRemove observability.EventType = "route.remove"
)
