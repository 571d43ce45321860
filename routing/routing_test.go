package routing_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/routing"
)

func regular() *messaging.Message {
	return messaging.NewMessage("Agent-2", "Agent-1", "status?").ID("m-1").Build()
}

func urgent() *messaging.Message {
	return messaging.NewMessage("captain", "Agent-1", "now").ID("m-2").Urgent().Build()
}

func cachedSnapshot(msg *messaging.Message, success, latency float64) routing.Snapshot {
	return routing.Snapshot{
		Routes: map[string]routing.Performance{
			routing.RouteKey(msg): {Kind: routing.KindDirect, Samples: 10, SuccessRate: success, AvgLatencyMS: latency, UsageCount: 10},
		},
	}
}

func TestAnalyze(t *testing.T) {
	msg := regular()

	tests := []struct {
		name      string
		requested []routing.Strategy
		snap      routing.Snapshot
		failed    map[routing.Kind]bool
		want      routing.Kind
	}{
		{
			name: "no history selects direct",
			want: routing.KindDirect,
		},
		{
			name: "fast reliable history selects cached",
			snap: cachedSnapshot(msg, 1.0, 40),
			want: routing.KindCached,
		},
		{
			name: "slow unreliable history loses to direct",
			snap: cachedSnapshot(msg, 0.2, 200),
			want: routing.KindDirect,
		},
		{
			name:      "caching bonus rescues slow history",
			requested: []routing.Strategy{routing.StrategyCaching},
			snap:      cachedSnapshot(msg, 0.5, 120),
			want:      routing.KindCached,
		},
		{
			name:      "batching bonus",
			requested: []routing.Strategy{routing.StrategyBatching},
			want:      routing.KindBatched,
		},
		{
			name:      "optimization requested",
			requested: []routing.Strategy{routing.StrategyOptimization},
			want:      routing.KindOptimized,
		},
		{
			name:      "tie breaks toward optimized over batched",
			requested: []routing.Strategy{routing.StrategyBatching, routing.StrategyOptimization},
			want:      routing.KindOptimized,
		},
		{
			name:      "load balancing bonus alone stays below direct",
			requested: []routing.Strategy{routing.StrategyLoadBalancing},
			want:      routing.KindDirect,
		},
		{
			name:      "hot spot penalty creates tie won by direct",
			requested: []routing.Strategy{routing.StrategyBatching, routing.StrategyLoadBalancing},
			snap:      routing.Snapshot{Usage: map[routing.Kind]int{routing.KindBatched: 30}},
			want:      routing.KindDirect,
		},
		{
			name:   "failed direct falls to batched",
			failed: map[routing.Kind]bool{routing.KindDirect: true},
			want:   routing.KindBatched,
		},
		{
			name: "everything failed falls back to direct",
			failed: map[routing.Kind]bool{
				routing.KindDirect:       true,
				routing.KindBatched:      true,
				routing.KindLoadBalanced: true,
				routing.KindQueued:       true,
			},
			want: routing.KindDirect,
		},
		{
			name:   "registered kinds restrict candidates",
			snap:   routing.Snapshot{Registered: []routing.Kind{routing.KindQueued}},
			failed: map[routing.Kind]bool{routing.KindDirect: true},
			want:   routing.KindQueued,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := routing.Analyze(msg, tt.requested, tt.snap, tt.failed)
			assert.Equal(t, tt.want, d.Kind)
			assert.False(t, d.FastPath)
			assert.Equal(t, routing.RouteKey(msg), d.Key)
		})
	}
}

func TestAnalyze_Ranking(t *testing.T) {
	d := routing.Analyze(regular(), nil, routing.Snapshot{}, nil)

	require.Len(t, d.Scores, 4)
	assert.Equal(t, []routing.Score{
		{Kind: routing.KindDirect, Score: 8},
		{Kind: routing.KindBatched, Score: 6},
		{Kind: routing.KindLoadBalanced, Score: 5},
		{Kind: routing.KindQueued, Score: 3},
	}, d.Scores)
}

func TestAnalyze_UrgentFastPath(t *testing.T) {
	msg := urgent()

	tests := []struct {
		name   string
		snap   routing.Snapshot
		failed map[routing.Kind]bool
		want   routing.Kind
	}{
		{name: "no history", want: routing.KindDirect},
		{name: "fast history", snap: cachedSnapshot(msg, 1.0, 50), want: routing.KindCached},
		{name: "slow history", snap: cachedSnapshot(msg, 1.0, 150), want: routing.KindDirect},
		{name: "cached failed", snap: cachedSnapshot(msg, 1.0, 50), failed: map[routing.Kind]bool{routing.KindCached: true}, want: routing.KindDirect},
		{name: "batching ignored", snap: routing.Snapshot{}, want: routing.KindDirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := routing.Analyze(msg, []routing.Strategy{routing.StrategyBatching}, tt.snap, tt.failed)
			assert.True(t, d.FastPath)
			assert.Empty(t, d.Scores)
			assert.Equal(t, tt.want, d.Kind)
		})
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	msg := regular()
	snap := cachedSnapshot(msg, 0.9, 60)
	snap.Usage = map[routing.Kind]int{routing.KindDirect: 5, routing.KindCached: 40, routing.KindBatched: 1}
	requested := []routing.Strategy{routing.StrategyLoadBalancing, routing.StrategyBatching, routing.StrategyOptimization}
	failed := map[routing.Kind]bool{routing.KindQueued: true}

	first := routing.Analyze(msg, requested, snap, failed)
	for range 200 {
		require.Equal(t, first, routing.Analyze(msg, requested, snap, failed))
	}
}

func TestRouteKey(t *testing.T) {
	a := messaging.NewMessage("x", "y", "one").Build()
	b := messaging.NewMessage("x", "y", "two").Build()
	c := messaging.NewMessage("x", "y", "one").Urgent().Build()

	assert.Equal(t, routing.RouteKey(a), routing.RouteKey(b))
	assert.NotEqual(t, routing.RouteKey(a), routing.RouteKey(c))
}

func TestAnalyzer_UpdateRoutePerformance(t *testing.T) {
	a := routing.NewAnalyzer()
	key := routing.RouteKey(regular())

	for range 10 {
		a.UpdateRoutePerformance(key, routing.KindDirect, 300*time.Millisecond, false)
	}
	for range routing.DefaultMaxSamples {
		a.UpdateRoutePerformance(key, routing.KindDirect, 20*time.Millisecond, true)
	}

	perf := a.Stats()[key]
	assert.Equal(t, routing.DefaultMaxSamples, perf.Samples)
	assert.Equal(t, routing.DefaultMaxSamples+10, perf.UsageCount)
	assert.InDelta(t, 1.0, perf.SuccessRate, 1e-9)
	assert.InDelta(t, 20.0, perf.AvgLatencyMS, 1e-9)
	assert.Equal(t, routing.DefaultMaxSamples+10, a.Snapshot().Usage[routing.KindDirect])
}

func TestAnalyzer_ConcurrentUpdates(t *testing.T) {
	a := routing.NewAnalyzer(routing.WithMaxSamples(50))

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kind := routing.KindDirect
			if w%2 == 0 {
				kind = routing.KindCached
			}
			for range 100 {
				a.UpdateRoutePerformance("shared", kind, time.Millisecond, true)
				_ = a.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := a.Snapshot()
	assert.Equal(t, 800, snap.Routes["shared"].UsageCount)
	assert.Equal(t, 50, snap.Routes["shared"].Samples)
	assert.Equal(t, 400, snap.Usage[routing.KindDirect])
	assert.Equal(t, 400, snap.Usage[routing.KindCached])
}

func TestAnalyzer_Select(t *testing.T) {
	rec := observability.NewRecorder()
	a := routing.NewAnalyzer(routing.WithObserver(rec))
	msg := regular()

	assert.Equal(t, routing.KindDirect, a.Select(t.Context(), msg, nil, nil).Kind)

	a.UpdateRoutePerformance(routing.RouteKey(msg), routing.KindDirect, 10*time.Millisecond, true)
	d := a.Select(t.Context(), msg, nil, nil)
	assert.Equal(t, routing.KindCached, d.Kind)

	assert.Equal(t, 2, rec.Count(routing.EventRouteSelect))
	assert.Equal(t, 1, rec.Count(routing.EventRouteRecord))
}

func TestAnalyzer_WithManager(t *testing.T) {
	m := routing.NewManager()
	a := routing.NewAnalyzer(routing.WithManager(m))
	msg := regular()
	requested := []routing.Strategy{routing.StrategyBatching}

	assert.Equal(t, routing.KindBatched, a.Select(t.Context(), msg, requested, nil).Kind)

	require.NoError(t, m.AddRoute("slow-lane", routing.KindQueued, nil, nil))
	assert.Equal(t, routing.KindDirect, a.Select(t.Context(), msg, requested, nil).Kind)
	assert.Equal(t, []routing.Kind{routing.KindQueued}, a.Snapshot().Registered)
}

func TestManager(t *testing.T) {
	m := routing.NewManager()

	require.NoError(t, m.AddRoute("primary", routing.KindDirect, nil, map[string]any{"window": "main"}))
	require.NoError(t, m.AddRoute("bulk", routing.KindBatched, &routing.Optimization{SuccessRate: 0.8, LatencyMS: 250, UsageCount: 3}, nil))

	route, ok := m.GetRoute("primary")
	require.True(t, ok)
	assert.Equal(t, routing.KindDirect, route.Kind)
	assert.Equal(t, routing.DefaultOptimization(), route.Optimization)
	assert.Equal(t, "main", route.Config["window"])

	route.Config["window"] = "mutated"
	again, _ := m.GetRoute("primary")
	assert.Equal(t, "main", again.Config["window"])

	assert.Equal(t, []string{"bulk", "primary"}, m.ListRoutes())
	assert.Equal(t, []routing.Kind{routing.KindDirect, routing.KindBatched}, m.Kinds())

	stats := m.GetRouteStats()
	assert.Equal(t, routing.Stats{Kind: routing.KindBatched, SuccessRate: 0.8, LatencyMS: 250, UsageCount: 3}, stats["bulk"])

	require.NoError(t, m.AddRoute("primary", routing.KindCached, nil, nil))
	route, _ = m.GetRoute("primary")
	assert.Equal(t, routing.KindCached, route.Kind)
	assert.Equal(t, 2, m.Len())

	assert.True(t, m.RemoveRoute("bulk"))
	assert.False(t, m.RemoveRoute("bulk"))
	_, ok = m.GetRoute("bulk")
	assert.False(t, ok)
	assert.Equal(t, []string{"primary"}, m.ListRoutes())
}

func TestManager_AddRouteErrors(t *testing.T) {
	m := routing.NewManager()

	tests := []struct {
		name  string
		route string
		kind  routing.Kind
		opt   *routing.Optimization
		want  error
	}{
		{name: "unknown kind", route: "x", kind: "teleport", want: routing.ErrUnknownKind},
		{name: "empty name", route: " ", kind: routing.KindDirect, want: routing.ErrInvalidRoute},
		{name: "success rate above one", route: "x", kind: routing.KindDirect, opt: &routing.Optimization{SuccessRate: 1.5}, want: routing.ErrInvalidRoute},
		{name: "negative latency", route: "x", kind: routing.KindDirect, opt: &routing.Optimization{SuccessRate: 1, LatencyMS: -1}, want: routing.ErrInvalidRoute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, m.AddRoute(tt.route, tt.kind, tt.opt, nil), tt.want)
		})
	}
	assert.Zero(t, m.Len())
}

func TestParseKind(t *testing.T) {
	k, err := routing.ParseKind("load-balanced")
	require.NoError(t, err)
	assert.Equal(t, routing.KindLoadBalanced, k)

	k, err = routing.ParseKind("cached")
	require.NoError(t, err)
	assert.Equal(t, routing.KindCached, k)

	_, err = routing.ParseKind("warp")
	require.ErrorIs(t, err, routing.ErrUnknownKind)
}
