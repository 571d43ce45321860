package bulk_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/relay/backend"
	"github.com/tailored-agentic-units/relay/bulk"
	"github.com/tailored-agentic-units/relay/config"
	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/policy"
	"github.com/tailored-agentic-units/relay/queue"
	"github.com/tailored-agentic-units/relay/strategy"
)

var errRules = errors.New("rule table corrupted")

// faultyPlanner wraps a real coordinator and fails or panics for selected
// recipients.
type faultyPlanner struct {
	*strategy.Coordinator
	fail  map[string]bool
	panic map[string]bool
}

func (p *faultyPlanner) ApplyRules(msg *messaging.Message, name string) (strategy.Plan, error) {
	if p.panic[msg.To] {
		panic("unexpected rule shape")
	}
	if p.fail[msg.To] {
		return strategy.Plan{}, errRules
	}
	return p.Coordinator.ApplyRules(msg, name)
}

func bulkConfig() config.BulkConfig {
	return config.BulkConfig{MaxWorkers: 4, Observer: "noop"}
}

func newEnforcer(t *testing.T) *policy.Enforcer {
	t.Helper()
	e, err := policy.NewEnforcer(nil)
	require.NoError(t, err)
	return e
}

func TestNew_RequiresPlanner(t *testing.T) {
	_, err := bulk.New(bulkConfig(), nil)
	assert.Error(t, err)
}

func TestCoordinateBulk_Strategies(t *testing.T) {
	enforcer := newEnforcer(t)
	c, err := bulk.New(bulkConfig(), strategy.New(strategy.WithClassifier(enforcer)))
	require.NoError(t, err)

	msgs := []*messaging.Message{
		messaging.NewMessage("Captain", "Agent-1", "a").Build(),
		messaging.NewMessage("Agent-2", "Agent-1", "b").Urgent().Build(),
		messaging.NewOnboarding("System", "Agent-3", "c").Build(),
		messaging.NewBroadcast("Agent-2", "Agent-4", "d").Build(),
		messaging.NewMessage("Agent-2", "Agent-5", "e").Build(),
		messaging.NewMessage("Agent-3", "Agent-5", "f").Build(),
	}

	report := c.CoordinateBulk(context.Background(), msgs)

	assert.Equal(t, 6, report.Total)
	assert.Equal(t, 6, report.Successful)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, report.Blocked)
	assert.Equal(t, map[string]int{
		strategy.Privileged: 1,
		strategy.Urgent:     1,
		strategy.System:     1,
		strategy.Broadcast:  1,
		strategy.Standard:   2,
	}, report.StrategyCounts)

	require.Len(t, report.Results, 6)
	for i, r := range report.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, msgs[i].ID, r.MessageID)
		assert.Equal(t, msgs[i].To, r.Recipient)
	}
}

func TestCoordinateBulk_FailuresIsolated(t *testing.T) {
	planner := &faultyPlanner{
		Coordinator: strategy.New(),
		fail:        map[string]bool{"Agent-2": true},
		panic:       map[string]bool{"Agent-3": true},
	}
	rec := observability.NewRecorder()
	c, err := bulk.New(bulkConfig(), planner, bulk.WithObserver(rec))
	require.NoError(t, err)

	msgs := []*messaging.Message{
		messaging.NewMessage("Agent-9", "Agent-1", "ok").Build(),
		messaging.NewMessage("Agent-9", "Agent-2", "error").Build(),
		messaging.NewMessage("Agent-9", "Agent-3", "panic").Build(),
		nil,
		messaging.NewMessage("Agent-9", "Agent-4", "ok").Build(),
	}

	report := c.CoordinateBulk(context.Background(), msgs)

	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 2, report.Successful)
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, errRules.Error(), report.Results[1].Error)
	assert.Contains(t, report.Results[2].Error, "unexpected rule shape")
	assert.Equal(t, bulk.ErrNilMessage.Error(), report.Results[3].Error)

	assert.Equal(t, 1, rec.Count(bulk.EventBulkStart))
	assert.Equal(t, 5, rec.Count(bulk.EventBulkMessage))
	assert.Equal(t, 1, rec.Count(bulk.EventBulkComplete))
}

func TestCoordinateBulk_Dispatcher(t *testing.T) {
	enforcer := newEnforcer(t)
	planner := strategy.New(strategy.WithClassifier(enforcer))

	be := backend.Func(func(context.Context, *messaging.Message) (bool, error) {
		return true, nil
	})
	q, err := queue.New(
		config.QueueConfig{RetryDelay: time.Millisecond, Observer: "noop"},
		be,
		queue.WithEnforcer(enforcer),
		queue.WithPlanner(planner),
	)
	require.NoError(t, err)

	c, err := bulk.New(bulkConfig(), planner, bulk.WithDispatcher(q))
	require.NoError(t, err)

	msgs := []*messaging.Message{
		messaging.NewMessage("Agent-1", "Agent-2", "regular").Build(),
		messaging.NewMessage("Agent-1", "Agent-3", "urgent").Urgent().Build(),
		messaging.NewMessage("Captain", "Agent-3", "urgent").Urgent().Build(),
	}

	report := c.CoordinateBulk(context.Background(), msgs)

	assert.Equal(t, 2, report.Successful)
	assert.Equal(t, 1, report.Blocked)
	assert.Equal(t, 0, report.Failed)
	assert.True(t, report.Results[1].Blocked)
	assert.Equal(t, policy.ReasonUrgentRequiresPrivileged, report.Results[1].Error)
	assert.Equal(t, msgs[0].ID, report.Results[0].QueueID)

	assert.Equal(t, 2, q.Process(context.Background()))
	assert.Equal(t, int64(2), q.Metrics().Delivered)
}

func TestCoordinateBulk_Empty(t *testing.T) {
	c, err := bulk.New(bulkConfig(), strategy.New())
	require.NoError(t, err)

	report := c.CoordinateBulk(context.Background(), nil)
	assert.Equal(t, 0, report.Total)
	assert.Empty(t, report.Results)
	assert.Empty(t, report.StrategyCounts)
}

func TestCoordinateBulk_CancelledContext(t *testing.T) {
	c, err := bulk.New(bulkConfig(), strategy.New())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := c.CoordinateBulk(ctx, []*messaging.Message{
		messaging.NewMessage("Agent-1", "Agent-2", "x").Build(),
	})
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, context.Canceled.Error(), report.Results[0].Error)
}

func TestGrouping(t *testing.T) {
	enforcer := newEnforcer(t)
	msgs := []*messaging.Message{
		messaging.NewMessage("Captain", "Agent-1", "a").Urgent().Build(),
		messaging.NewMessage("Agent-2", "Agent-1", "b").Build(),
		messaging.NewBroadcast("Agent-2", "Agent-3", "c").Build(),
		nil,
	}

	tests := []struct {
		name     string
		groups   map[string][]*messaging.Message
		expected map[string]int
	}{
		{
			name:     "priority",
			groups:   bulk.GroupByPriority(msgs),
			expected: map[string]int{"urgent": 1, "regular": 2},
		},
		{
			name:     "kind",
			groups:   bulk.GroupByKind(msgs),
			expected: map[string]int{string(messaging.KindAgentToAgent): 2, string(messaging.KindBroadcast): 1},
		},
		{
			name:     "sender role",
			groups:   bulk.GroupBySenderRole(msgs, enforcer),
			expected: map[string]int{strategy.RolePrivileged: 1, strategy.RoleAgent: 2},
		},
		{
			name:     "sender role without classifier",
			groups:   bulk.GroupBySenderRole(msgs, nil),
			expected: map[string]int{strategy.RoleAgent: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, bulk.Counts(tt.groups))
		})
	}
}
