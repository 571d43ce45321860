// Package transport exposes the relay queue and route registry over Connect.
//
// Every procedure is unary and exchanges google.protobuf.Struct payloads, so
// the surface needs no generated code: requests are decoded from the struct
// with mapstructure and responses are the JSON shape of the queue and
// routing types. Procedures live under two services:
//
//	/relay.v1.QueueService/{Enqueue,Send,Status,Wait,Broadcast}
//	/relay.v1.RouteService/{AddRoute,RemoveRoute,ListRoutes,RouteStats}
//
// The server also mounts /metrics (Prometheus) and /healthz on the same chi
// router. Client is the matching caller.
package transport
