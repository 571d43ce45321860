package transport

import (
	"github.com/tailored-agentic-units/relay/queue"
	"github.com/tailored-agentic-units/relay/routing"
)

const (
	QueueServiceName = "relay.v1.QueueService"
	RouteServiceName = "relay.v1.RouteService"
)

const (
	ProcedureEnqueue   = "/" + QueueServiceName + "/Enqueue"
	ProcedureSend      = "/" + QueueServiceName + "/Send"
	ProcedureStatus    = "/" + QueueServiceName + "/Status"
	ProcedureWait      = "/" + QueueServiceName + "/Wait"
	ProcedureBroadcast = "/" + QueueServiceName + "/Broadcast"

	ProcedureAddRoute    = "/" + RouteServiceName + "/AddRoute"
	ProcedureRemoveRoute = "/" + RouteServiceName + "/RemoveRoute"
	ProcedureListRoutes  = "/" + RouteServiceName + "/ListRoutes"
	ProcedureRouteStats  = "/" + RouteServiceName + "/RouteStats"
)

// MessageRequest carries one message. An empty ID gets a generated one and
// empty Kind and Priority take the builder defaults.
type MessageRequest struct {
	ID       string         `json:"id,omitempty" mapstructure:"id"`
	From     string         `json:"from" mapstructure:"from"`
	To       string         `json:"to" mapstructure:"to"`
	Content  string         `json:"content" mapstructure:"content"`
	Kind     string         `json:"kind,omitempty" mapstructure:"kind"`
	Priority string         `json:"priority,omitempty" mapstructure:"priority"`
	Tags     []string       `json:"tags,omitempty" mapstructure:"tags"`
	Metadata map[string]any `json:"metadata,omitempty" mapstructure:"metadata"`
}

type SendRequest struct {
	Message MessageRequest `json:"message" mapstructure:"message"`
	Timeout string         `json:"timeout,omitempty" mapstructure:"timeout"`
}

type EnqueueResponse struct {
	QueueID string `json:"queue_id"`
}

type StatusRequest struct {
	ID string `json:"id" mapstructure:"id"`
}

type WaitRequest struct {
	ID      string `json:"id" mapstructure:"id"`
	Timeout string `json:"timeout,omitempty" mapstructure:"timeout"`
}

type BroadcastRequest struct {
	From       string   `json:"from" mapstructure:"from"`
	Content    string   `json:"content" mapstructure:"content"`
	Recipients []string `json:"recipients" mapstructure:"recipients"`
	Priority   string   `json:"priority,omitempty" mapstructure:"priority"`
}

type AddRouteRequest struct {
	Name         string         `json:"name" mapstructure:"name"`
	Kind         string         `json:"kind" mapstructure:"kind"`
	Optimization *Optimization  `json:"optimization,omitempty" mapstructure:"optimization"`
	Config       map[string]any `json:"config,omitempty" mapstructure:"config"`
}

type Optimization struct {
	SuccessRate float64 `json:"success_rate" mapstructure:"success_rate"`
	LatencyMS   float64 `json:"latency_ms" mapstructure:"latency_ms"`
	UsageCount  int     `json:"usage_count" mapstructure:"usage_count"`
}

type RemoveRouteRequest struct {
	Name string `json:"name" mapstructure:"name"`
}

type RemoveRouteResponse struct {
	Removed bool `json:"removed"`
}

type ListRoutesResponse struct {
	Routes []string `json:"routes"`
}

type RouteStatsResponse struct {
	Routes      map[string]routing.Stats       `json:"routes"`
	Performance map[string]routing.Performance `json:"performance,omitempty"`
}

type BroadcastResponse struct {
	Results []queue.Result `json:"results"`
}
