package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/queue"
	"github.com/tailored-agentic-units/relay/routing"
)

// Client calls a relay server. Errors returned by the server are
// *connect.Error values; use connect.CodeOf to classify them.
type Client struct {
	procedures map[string]*connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient creates a Client for the server at baseURL. A nil httpClient
// uses http.DefaultClient.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")

	c := &Client{procedures: make(map[string]*connect.Client[structpb.Struct, structpb.Struct])}
	for _, procedure := range []string{
		ProcedureEnqueue,
		ProcedureSend,
		ProcedureStatus,
		ProcedureWait,
		ProcedureBroadcast,
		ProcedureAddRoute,
		ProcedureRemoveRoute,
		ProcedureListRoutes,
		ProcedureRouteStats,
	} {
		c.procedures[procedure] = connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+procedure, opts...)
	}
	return c
}

func (c *Client) call(ctx context.Context, procedure string, req, res any) error {
	in, err := encode(req)
	if err != nil {
		return err
	}

	out, err := c.procedures[procedure].CallUnary(ctx, connect.NewRequest(in))
	if err != nil {
		return err
	}

	if res == nil {
		return nil
	}
	return unpack(out.Msg, res)
}

// Enqueue admits msg on the server. A policy denial is returned as a
// *queue.AdmissionError wrapping queue.ErrDenied, as the local queue does.
func (c *Client) Enqueue(ctx context.Context, msg *messaging.Message) (string, error) {
	var res EnqueueResponse
	if err := c.call(ctx, ProcedureEnqueue, messageRequest(msg), &res); err != nil {
		var connectErr *connect.Error
		if errors.As(err, &connectErr) && connectErr.Code() == connect.CodePermissionDenied {
			return "", &queue.AdmissionError{MessageID: msg.ID, Reason: connectErr.Message(), Err: queue.ErrDenied}
		}
		return "", err
	}
	return res.QueueID, nil
}

// Send enqueues msg on the server and waits up to timeout for its outcome.
func (c *Client) Send(ctx context.Context, msg *messaging.Message, timeout time.Duration) (queue.Result, error) {
	req := SendRequest{Message: messageRequest(msg), Timeout: timeout.String()}

	var res queue.Result
	err := c.call(ctx, ProcedureSend, req, &res)
	return res, err
}

func (c *Client) Status(ctx context.Context, id string) (queue.Entry, error) {
	var res queue.Entry
	err := c.call(ctx, ProcedureStatus, StatusRequest{ID: id}, &res)
	return res, err
}

func (c *Client) Wait(ctx context.Context, id string, timeout time.Duration) (queue.Result, error) {
	var res queue.Result
	err := c.call(ctx, ProcedureWait, WaitRequest{ID: id, Timeout: timeout.String()}, &res)
	return res, err
}

func (c *Client) Broadcast(ctx context.Context, from, content string, recipients []string, priority messaging.Priority) ([]queue.Result, error) {
	req := BroadcastRequest{
		From:       from,
		Content:    content,
		Recipients: recipients,
		Priority:   string(priority),
	}

	var res BroadcastResponse
	if err := c.call(ctx, ProcedureBroadcast, req, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

func (c *Client) AddRoute(ctx context.Context, name string, kind routing.Kind, opt *routing.Optimization, cfg map[string]any) (routing.Route, error) {
	req := AddRouteRequest{Name: name, Kind: string(kind), Config: cfg}
	if opt != nil {
		req.Optimization = &Optimization{
			SuccessRate: opt.SuccessRate,
			LatencyMS:   opt.LatencyMS,
			UsageCount:  opt.UsageCount,
		}
	}

	var res routing.Route
	err := c.call(ctx, ProcedureAddRoute, req, &res)
	return res, err
}

func (c *Client) RemoveRoute(ctx context.Context, name string) (bool, error) {
	var res RemoveRouteResponse
	err := c.call(ctx, ProcedureRemoveRoute, RemoveRouteRequest{Name: name}, &res)
	return res.Removed, err
}

func (c *Client) ListRoutes(ctx context.Context) ([]string, error) {
	var res ListRoutesResponse
	err := c.call(ctx, ProcedureListRoutes, struct{}{}, &res)
	return res.Routes, err
}

func (c *Client) RouteStats(ctx context.Context) (RouteStatsResponse, error) {
	var res RouteStatsResponse
	err := c.call(ctx, ProcedureRouteStats, struct{}{}, &res)
	return res, err
}
