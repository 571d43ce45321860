package routing

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/relay/observability"
)

// Manager is a registry of named routes. It is independent of live traffic:
// route stats change only through AddRoute.
type Manager struct {
	mu       sync.RWMutex
	routes   map[string]Route
	observer observability.Observer
	logger   *slog.Logger
}

type ManagerOption func(*Manager)

func WithManagerObserver(o observability.Observer) ManagerOption {
	return func(m *Manager) { m.observer = o }
}

func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		routes:   make(map[string]Route),
		observer: observability.NoOpObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddRoute registers a route, overwriting any route with the same name. A nil
// optimization registers DefaultOptimization.
func (m *Manager) AddRoute(name string, kind Kind, opt *Optimization, config map[string]any) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRoute)
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	optimization := DefaultOptimization()
	if opt != nil {
		optimization = *opt
	}
	if err := optimization.validate(); err != nil {
		return err
	}

	route := Route{
		Name:         name,
		Kind:         kind,
		Optimization: optimization,
		Config:       maps.Clone(config),
	}

	m.mu.Lock()
	_, replaced := m.routes[name]
	m.routes[name] = route
	m.mu.Unlock()

	m.logger.Debug("route registered",
		slog.String("name", name),
		slog.String("kind", string(kind)),
		slog.Bool("replaced", replaced))

	m.observer.OnEvent(context.Background(), observability.NewEvent(EventRouteAdd, observability.LevelVerbose, "routing.Manager.AddRoute", map[string]any{
		"name":     name,
		"kind":     string(kind),
		"replaced": replaced,
	}))

	return nil
}

func (m *Manager) RemoveRoute(name string) bool {
	m.mu.Lock()
	_, exists := m.routes[name]
	delete(m.routes, name)
	m.mu.Unlock()

	if exists {
		m.observer.OnEvent(context.Background(), observability.NewEvent(EventRouteRemove, observability.LevelVerbose, "routing.Manager.RemoveRoute", map[string]any{
			"name": name,
		}))
	}
	return exists
}

func (m *Manager) GetRoute(name string) (Route, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	route, ok := m.routes[name]
	if ok {
		route.Config = maps.Clone(route.Config)
	}
	return route, ok
}

// ListRoutes returns the registered names in sorted order.
func (m *Manager) ListRoutes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.routes))
}

func (m *Manager) GetRouteStats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]Stats, len(m.routes))
	for name, route := range m.routes {
		stats[name] = Stats{
			Kind:        route.Kind,
			SuccessRate: route.Optimization.SuccessRate,
			LatencyMS:   route.Optimization.LatencyMS,
			UsageCount:  route.Optimization.UsageCount,
		}
	}
	return stats
}

// Kinds returns the distinct kinds of the registered routes in tie-break
// order.
func (m *Manager) Kinds() []Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[Kind]bool)
	for _, route := range m.routes {
		seen[route.Kind] = true
	}

	var kinds []Kind
	for _, k := range Kinds() {
		if seen[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.routes)
}
