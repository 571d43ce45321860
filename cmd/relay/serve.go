package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tailored-agentic-units/relay/backend"
	"github.com/tailored-agentic-units/relay/config"
	"github.com/tailored-agentic-units/relay/journal"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/policy"
	"github.com/tailored-agentic-units/relay/queue"
	"github.com/tailored-agentic-units/relay/routing"
	"github.com/tailored-agentic-units/relay/strategy"
	"github.com/tailored-agentic-units/relay/transport"
)

type ServeCmd struct {
	Config      string `short:"c" help:"Path to a YAML or JSON config file." type:"path"`
	Policy      string `help:"Path to the policy document (overrides config)." type:"path"`
	WatchPolicy bool   `name:"watch-policy" help:"Reload the policy when its file changes."`
	Inbox       string `help:"File-drop inbox root (overrides config)." type:"path"`
	Addr        string `help:"Listen address (overrides config)."`
}

func (c *ServeCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := observability.NewPrometheusObserver(reg)
	if err != nil {
		return err
	}
	observability.RegisterObserver("prometheus", prom)
	if !strings.Contains(cfg.Queue.Observer, "prometheus") {
		cfg.Queue.Observer += ",prometheus"
	}

	enforcer, source, err := loadEnforcer(ctx, cfg.Policy.Path, logger)
	if err != nil {
		return err
	}
	if source != nil {
		defer source.Close()
		if cfg.Policy.Watch {
			go watchPolicy(ctx, source, enforcer, logger)
		}
	}

	coordinator, err := newCoordinator(cfg, enforcer, logger)
	if err != nil {
		return err
	}

	manager, err := newManager(cfg.Routing, logger)
	if err != nil {
		return err
	}
	analyzer := routing.NewAnalyzer(
		routing.WithManager(manager),
		routing.WithMaxSamples(cfg.Routing.MaxSamples),
		routing.WithLogger(logger),
	)

	store, err := journal.New(cfg.Journal)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	opts := []queue.Option{
		queue.WithEnforcer(enforcer),
		queue.WithPlanner(coordinator),
		queue.WithRouter(analyzer),
		queue.WithLogger(logger),
	}
	if store != nil {
		defer store.Close()
		opts = append(opts, queue.WithJournal(store))
	}

	drop := backend.NewFileDrop(cfg.Server.InboxRoot)
	drop.RequireInbox = cfg.Server.RequireInbox

	q, err := queue.New(cfg.Queue, drop, opts...)
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}
	if err := q.Start(ctx); err != nil {
		return err
	}
	defer q.Shutdown(cfg.Server.ShutdownTimeout)

	srv := transport.NewServer(
		cfg.Server,
		q,
		transport.WithRoutes(manager),
		transport.WithAnalyzer(analyzer),
		transport.WithGatherer(reg),
		transport.WithLogger(logger),
	)
	return srv.ListenAndServe(ctx)
}

func (c *ServeCmd) loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	loaded := &cfg
	if c.Config != "" {
		var err error
		if loaded, err = config.Load(c.Config); err != nil {
			return nil, err
		}
	}

	if c.Policy != "" {
		loaded.Policy.Path = c.Policy
	}
	if c.WatchPolicy {
		loaded.Policy.Watch = true
	}
	if c.Inbox != "" {
		loaded.Server.InboxRoot = c.Inbox
	}
	if c.Addr != "" {
		loaded.Server.Addr = c.Addr
	}
	return loaded, nil
}

// loadEnforcer builds the enforcer from path, or from the built-in policy
// when path is empty. The returned source is nil in the latter case.
func loadEnforcer(ctx context.Context, path string, logger *slog.Logger) (*policy.Enforcer, *policy.FileSource, error) {
	if path == "" {
		enforcer, err := policy.NewEnforcer(nil, policy.WithLogger(logger))
		return enforcer, nil, err
	}

	source, err := policy.NewFileSource(path)
	if err != nil {
		return nil, nil, err
	}
	doc, err := source.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	enforcer, err := policy.NewEnforcer(doc, policy.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return enforcer, source, nil
}

func watchPolicy(ctx context.Context, source *policy.FileSource, enforcer *policy.Enforcer, logger *slog.Logger) {
	changes, err := source.Watch(ctx)
	if err != nil {
		logger.Error("failed to watch policy", slog.String("path", source.Path()), slog.String("error", err.Error()))
		return
	}

	for range changes {
		if err := enforcer.ReloadFrom(ctx, source); err != nil {
			logger.Warn("policy reload rejected", slog.String("path", source.Path()), slog.String("error", err.Error()))
			continue
		}
		logger.Info("policy reloaded", slog.String("path", source.Path()), slog.String("version", enforcer.Document().Version))
	}
}

func newCoordinator(cfg *config.Config, classifier strategy.Classifier, logger *slog.Logger) (*strategy.Coordinator, error) {
	coordinator := strategy.New(strategy.WithClassifier(classifier), strategy.WithLogger(logger))
	for name, partial := range cfg.Strategies {
		if !coordinator.UpdateRoutingConfig(name, partial) {
			return nil, fmt.Errorf("invalid routing config for strategy %q", name)
		}
	}
	return coordinator, nil
}

func newManager(cfg config.RoutingConfig, logger *slog.Logger) (*routing.Manager, error) {
	manager := routing.NewManager(routing.WithManagerLogger(logger))
	for _, r := range cfg.Routes {
		kind, err := routing.ParseKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", r.Name, err)
		}

		var opt *routing.Optimization
		if r.SuccessRate > 0 || r.LatencyMS > 0 {
			opt = &routing.Optimization{SuccessRate: r.SuccessRate, LatencyMS: r.LatencyMS}
		}
		if err := manager.AddRoute(r.Name, kind, opt, r.Config); err != nil {
			return nil, err
		}
	}
	return manager, nil
}
