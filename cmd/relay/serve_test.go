package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/relay/config"
	"github.com/tailored-agentic-units/relay/routing"
	"github.com/tailored-agentic-units/relay/strategy"
)

func TestServeCmd_LoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9000\"\n  inbox_root: from-file\n"), 0o600))

	cmd := &ServeCmd{Config: path, Inbox: "from-flag", WatchPolicy: true}
	cfg, err := cmd.loadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "from-flag", cfg.Server.InboxRoot)
	assert.True(t, cfg.Policy.Watch)
	assert.Equal(t, config.DefaultQueueConfig().MaxAttempts, cfg.Queue.MaxAttempts)
}

func TestNewManager(t *testing.T) {
	m, err := newManager(config.RoutingConfig{
		Routes: []config.RouteConfig{
			{Name: "fast", Kind: "cached", SuccessRate: 0.9, LatencyMS: 40},
			{Name: "spread", Kind: "load-balanced"},
		},
	}, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, []string{"fast", "spread"}, m.ListRoutes())
	route, ok := m.GetRoute("spread")
	require.True(t, ok)
	assert.Equal(t, routing.KindLoadBalanced, route.Kind)
	assert.Equal(t, 1.0, route.Optimization.SuccessRate)

	_, err = newManager(config.RoutingConfig{Routes: []config.RouteConfig{{Name: "x", Kind: "warp"}}}, slog.Default())
	assert.Error(t, err)
}

func TestNewCoordinator_StrategyOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Strategies = map[string]map[string]any{
		strategy.Standard: {"retry_attempts": 7},
	}

	enforcer, source, err := loadEnforcer(context.Background(), "", slog.Default())
	require.NoError(t, err)
	assert.Nil(t, source)

	c, err := newCoordinator(&cfg, enforcer, slog.Default())
	require.NoError(t, err)
	rc, ok := c.RoutingConfig(strategy.Standard)
	require.True(t, ok)
	assert.Equal(t, 7, rc.RetryAttempts)

	cfg.Strategies = map[string]map[string]any{"nonexistent": {"retry_attempts": 1}}
	_, err = newCoordinator(&cfg, enforcer, slog.Default())
	assert.Error(t, err)
}
