package strategy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/policy"
	"github.com/tailored-agentic-units/relay/routing"
	"github.com/tailored-agentic-units/relay/strategy"
)

func newCoordinator(t *testing.T, opts ...strategy.Option) *strategy.Coordinator {
	t.Helper()
	enforcer, err := policy.NewEnforcer(nil)
	require.NoError(t, err)
	return strategy.New(append([]strategy.Option{strategy.WithClassifier(enforcer)}, opts...)...)
}

func TestCoordinator_DetermineStrategy(t *testing.T) {
	c := newCoordinator(t)

	tests := []struct {
		name string
		msg  *messaging.Message
		want string
	}{
		{name: "privileged beats urgent", msg: messaging.NewMessage("captain", "Agent-1", "x").Urgent().Build(), want: strategy.Privileged},
		{name: "privileged regular", msg: messaging.NewMessage("captain", "Agent-1", "x").Build(), want: strategy.Privileged},
		{name: "urgent", msg: messaging.NewMessage("Agent-2", "Agent-1", "x").Urgent().Build(), want: strategy.Urgent},
		{name: "urgent beats broadcast", msg: messaging.NewBroadcast("Agent-2", "Agent-1", "x").Urgent().Build(), want: strategy.Urgent},
		{name: "onboarding", msg: messaging.NewOnboarding("system", "Agent-1", "x").Build(), want: strategy.System},
		{name: "system to agent", msg: messaging.NewMessage("system", "Agent-1", "x").Kind(messaging.KindSystemToAgent).Build(), want: strategy.System},
		{name: "broadcast", msg: messaging.NewBroadcast("Agent-2", "Agent-1", "x").Build(), want: strategy.Broadcast},
		{name: "standard", msg: messaging.NewMessage("Agent-2", "Agent-1", "x").Build(), want: strategy.Standard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.DetermineStrategy(tt.msg))
		})
	}
}

func TestCoordinator_WithoutClassifier(t *testing.T) {
	c := strategy.New()
	msg := messaging.NewMessage("captain", "Agent-1", "x").Build()

	assert.Equal(t, strategy.Standard, c.DetermineStrategy(msg))
	assert.Equal(t, strategy.RoleAgent, c.SenderRole("captain"))
}

func TestCoordinator_ApplyRules_Cumulative(t *testing.T) {
	c := newCoordinator(t)
	msg := messaging.NewBroadcast("captain", "Agent-1", "all hands").Urgent().Build()

	plan, err := c.ApplyRules(msg, c.DetermineStrategy(msg))
	require.NoError(t, err)

	assert.Equal(t, strategy.Privileged, plan.Strategy)
	assert.Equal(t, []string{"urgent", "broadcast", "privileged"}, plan.RulesApplied)
	assert.Equal(t, 100*time.Millisecond, plan.EstimatedDelivery)
	assert.Equal(t, 5, plan.Routing.RetryAttempts)
	assert.Equal(t, true, plan.Directives["fanout"])
	assert.Equal(t, true, plan.Directives["audit"])
}

func TestCoordinator_ApplyRules_Standard(t *testing.T) {
	c := newCoordinator(t)
	msg := messaging.NewMessage("Agent-2", "Agent-1", "x").Build()

	plan, err := c.ApplyRules(msg, strategy.Standard)
	require.NoError(t, err)

	assert.Empty(t, plan.RulesApplied)
	assert.Equal(t, 3, plan.Routing.RetryAttempts)
	assert.Equal(t, 30*time.Second, plan.Routing.Timeout)
	assert.Equal(t, "standard", plan.Routing.DeliveryMethod)
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		want time.Duration
	}{
		{strategy.Privileged, 100 * time.Millisecond},
		{strategy.Urgent, 200 * time.Millisecond},
		{strategy.System, 300 * time.Millisecond},
		{strategy.Broadcast, 400 * time.Millisecond},
		{strategy.Standard, 500 * time.Millisecond},
		{"mystery", strategy.DefaultEstimate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, strategy.Estimate(tt.name))
		})
	}
}

func TestCoordinator_ApplyRules_UnknownStrategy(t *testing.T) {
	c := newCoordinator(t)

	plan, err := c.ApplyRules(messaging.NewMessage("a", "b", "c").Build(), "mystery")
	require.NoError(t, err)
	assert.Equal(t, "mystery", plan.Strategy)
	assert.Equal(t, strategy.DefaultEstimate, plan.EstimatedDelivery)
	assert.Equal(t, 3, plan.Routing.RetryAttempts)

	_, err = c.ApplyRules(nil, strategy.Standard)
	require.ErrorIs(t, err, strategy.ErrNilMessage)
}

func TestCoordinator_Coordinate(t *testing.T) {
	rec := observability.NewRecorder()
	c := newCoordinator(t, strategy.WithObserver(rec))

	plan, err := c.Coordinate(t.Context(), messaging.NewOnboarding("system", "Agent-3", "welcome").Build())
	require.NoError(t, err)
	assert.Equal(t, strategy.System, plan.Strategy)
	assert.Equal(t, []string{"onboarding", "system"}, plan.RulesApplied)
	assert.Equal(t, []routing.Strategy{routing.StrategyOptimization}, plan.Routing.Optimizations)
	assert.Equal(t, 1, rec.Count(strategy.EventStrategySelect))

	_, err = c.Coordinate(t.Context(), &messaging.Message{ID: "x", From: "a", To: "b"})
	require.ErrorIs(t, err, messaging.ErrInvalidMessage)

	_, err = c.Coordinate(t.Context(), nil)
	require.ErrorIs(t, err, strategy.ErrNilMessage)
}

func TestCoordinator_UpdateRule(t *testing.T) {
	c := newCoordinator(t)
	msg := messaging.NewMessage("Agent-2", "Agent-1", "x").Kind(messaging.KindText).Build()

	assert.False(t, c.UpdateRule("colour", "red", map[string]any{"tag": "red"}))
	assert.True(t, c.UpdateRule(strategy.CategoryKind, "text", map[string]any{"tag": "plain", "retry_attempts": 9}))

	plan, err := c.ApplyRules(msg, c.DetermineStrategy(msg))
	require.NoError(t, err)
	assert.Equal(t, []string{"plain"}, plan.RulesApplied)
	assert.Equal(t, 9, plan.Routing.RetryAttempts)

	broadcast := messaging.NewBroadcast("Agent-2", "Agent-1", "x").Build()
	plan, err = c.ApplyRules(broadcast, c.DetermineStrategy(broadcast))
	require.NoError(t, err)
	assert.Equal(t, []string{"broadcast"}, plan.RulesApplied)
	assert.Equal(t, 3, plan.Routing.RetryAttempts)
}

func TestCoordinator_UpdateRoutingConfig(t *testing.T) {
	c := newCoordinator(t)

	assert.False(t, c.UpdateRoutingConfig("mystery", map[string]any{"retry_attempts": 1}))
	assert.False(t, c.UpdateRoutingConfig(strategy.Urgent, map[string]any{"retry_attempts": "many"}))

	require.True(t, c.UpdateRoutingConfig(strategy.Broadcast, map[string]any{
		"timeout":       "45s",
		"optimizations": "caching",
	}))

	cfg, ok := c.RoutingConfig(strategy.Broadcast)
	require.True(t, ok)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, "fanout", cfg.DeliveryMethod)
	assert.Equal(t, []routing.Strategy{routing.StrategyCaching}, cfg.Optimizations)

	urgent, _ := c.RoutingConfig(strategy.Urgent)
	assert.Equal(t, 5, urgent.RetryAttempts)

	assert.Equal(t, []string{
		strategy.Broadcast,
		strategy.Privileged,
		strategy.Standard,
		strategy.System,
		strategy.Urgent,
	}, c.Strategies())
}
