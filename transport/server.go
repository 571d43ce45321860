package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/relay/config"
	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/queue"
	"github.com/tailored-agentic-units/relay/routing"
)

type Option func(*Server)

// WithRoutes serves the route service from m. Without it every route
// procedure returns CodeUnimplemented.
func WithRoutes(m *routing.Manager) Option {
	return func(s *Server) { s.routes = m }
}

// WithAnalyzer adds live route performance to RouteStats.
func WithAnalyzer(a *routing.Analyzer) Option {
	return func(s *Server) { s.analyzer = a }
}

// WithGatherer sets the registry served at /metrics. The default is
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server serves a queue over Connect.
type Server struct {
	cfg      config.ServerConfig
	queue    *queue.Queue
	routes   *routing.Manager
	analyzer *routing.Analyzer
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

func NewServer(cfg config.ServerConfig, q *queue.Queue, opts ...Option) *Server {
	merged := config.DefaultServerConfig()
	merged.Merge(&cfg)

	s := &Server{
		cfg:      merged,
		queue:    q,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with every procedure, /metrics and /healthz
// mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	procedures := map[string]unaryFunc{
		ProcedureEnqueue:     s.enqueue,
		ProcedureSend:        s.send,
		ProcedureStatus:      s.status,
		ProcedureWait:        s.wait,
		ProcedureBroadcast:   s.broadcast,
		ProcedureAddRoute:    s.addRoute,
		ProcedureRemoveRoute: s.removeRoute,
		ProcedureListRoutes:  s.listRoutes,
		ProcedureRouteStats:  s.routeStats,
	}
	for procedure, fn := range procedures {
		r.Handle(procedure, s.unary(procedure, fn))
	}

	return r
}

// ListenAndServe serves on cfg.Addr until ctx ends, then shuts down within
// cfg.ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay server listening", slog.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	}
}

type unaryFunc func(ctx context.Context, req *structpb.Struct) (any, error)

func (s *Server) unary(procedure string, fn unaryFunc) *connect.Handler {
	return connect.NewUnaryHandler(
		procedure,
		func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				s.logger.DebugContext(
					ctx,
					"procedure failed",
					slog.String("procedure", procedure),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			out, err := encode(res)
			if err != nil {
				return nil, connect.NewError(connect.CodeInternal, err)
			}
			return connect.NewResponse(out), nil
		},
	)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(
			r.Context(),
			"http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) enqueue(ctx context.Context, req *structpb.Struct) (any, error) {
	var in MessageRequest
	if err := decode(req, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	id, err := s.queue.Enqueue(ctx, in.Message())
	if err != nil {
		return nil, admissionError(err)
	}
	return EnqueueResponse{QueueID: id}, nil
}

func (s *Server) send(ctx context.Context, req *structpb.Struct) (any, error) {
	var in SendRequest
	if err := decode(req, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	timeout, err := parseTimeout(in.Timeout)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return s.queue.Send(ctx, in.Message.Message(), timeout), nil
}

func (s *Server) status(_ context.Context, req *structpb.Struct) (any, error) {
	var in StatusRequest
	if err := decode(req, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	entry, ok := s.queue.Status(in.ID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("%w: %s", queue.ErrUnknownEntry, in.ID))
	}
	return entry, nil
}

func (s *Server) wait(ctx context.Context, req *structpb.Struct) (any, error) {
	var in WaitRequest
	if err := decode(req, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	timeout, err := parseTimeout(in.Timeout)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return s.queue.Wait(ctx, in.ID, timeout), nil
}

func (s *Server) broadcast(ctx context.Context, req *structpb.Struct) (any, error) {
	var in BroadcastRequest
	if err := decode(req, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	priority := messaging.PriorityRegular
	if in.Priority != "" {
		priority = messaging.Priority(in.Priority)
	}

	return BroadcastResponse{
		Results: s.queue.Broadcast(ctx, in.From, in.Content, in.Recipients, priority),
	}, nil
}

func (s *Server) addRoute(_ context.Context, req *structpb.Struct) (any, error) {
	if s.routes == nil {
		return nil, errNoRoutes
	}

	var in AddRouteRequest
	if err := decode(req, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	kind, err := routing.ParseKind(in.Kind)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	var opt *routing.Optimization
	if in.Optimization != nil {
		opt = &routing.Optimization{
			SuccessRate: in.Optimization.SuccessRate,
			LatencyMS:   in.Optimization.LatencyMS,
			UsageCount:  in.Optimization.UsageCount,
		}
	}

	if err := s.routes.AddRoute(in.Name, kind, opt, in.Config); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	route, _ := s.routes.GetRoute(in.Name)
	return route, nil
}

func (s *Server) removeRoute(_ context.Context, req *structpb.Struct) (any, error) {
	if s.routes == nil {
		return nil, errNoRoutes
	}

	var in RemoveRouteRequest
	if err := decode(req, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return RemoveRouteResponse{Removed: s.routes.RemoveRoute(in.Name)}, nil
}

func (s *Server) listRoutes(context.Context, *structpb.Struct) (any, error) {
	if s.routes == nil {
		return nil, errNoRoutes
	}
	return ListRoutesResponse{Routes: s.routes.ListRoutes()}, nil
}

func (s *Server) routeStats(context.Context, *structpb.Struct) (any, error) {
	if s.routes == nil {
		return nil, errNoRoutes
	}

	res := RouteStatsResponse{Routes: s.routes.GetRouteStats()}
	if s.analyzer != nil {
		res.Performance = s.analyzer.Stats()
	}
	return res, nil
}

var errNoRoutes = connect.NewError(connect.CodeUnimplemented, errors.New("route service not configured"))

// admissionError maps an Enqueue failure to a Connect code. A denial
// carries only the policy reason as its message.
func admissionError(err error) error {
	var admission *queue.AdmissionError
	switch {
	case errors.As(err, &admission) && admission.Denied():
		return connect.NewError(connect.CodePermissionDenied, errors.New(admission.Reason))
	case errors.Is(err, queue.ErrDuplicate):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.As(err, &admission):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, queue.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
