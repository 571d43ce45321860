package routing

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/observability"
)

const (
	// DefaultMaxSamples bounds the performance history kept per route key.
	DefaultMaxSamples = 500

	// FastLatencyMS is the average latency under which an urgent message may
	// take the cached route.
	FastLatencyMS = 100.0
)

var baseScores = map[Kind]float64{
	KindCached:       10,
	KindDirect:       8,
	KindOptimized:    7,
	KindBatched:      6,
	KindLoadBalanced: 5,
	KindQueued:       3,
}

var strategyBonuses = map[Strategy]struct {
	kind  Kind
	bonus float64
}{
	StrategyBatching:      {KindBatched, 3},
	StrategyLoadBalancing: {KindLoadBalanced, 2},
	StrategyCaching:       {KindCached, 4},
	StrategyOptimization:  {KindOptimized, 2},
}

// Performance summarizes the recorded history of one route key.
type Performance struct {
	Kind         Kind    `json:"kind"`
	Samples      int     `json:"samples"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	UsageCount   int     `json:"usage_count"`
}

// Snapshot is the read-only input Analyze scores against.
type Snapshot struct {
	// Routes maps route keys to their performance. A key present here is
	// "in the cache".
	Routes map[string]Performance
	// Usage counts recorded deliveries per route kind.
	Usage map[Kind]int
	// Registered restricts the candidates to these kinds when non-empty.
	// KindDirect is always allowed.
	Registered []Kind
}

type Score struct {
	Kind  Kind    `json:"kind"`
	Score float64 `json:"score"`
}

// Decision is the outcome of Analyze.
type Decision struct {
	Key  string
	Kind Kind
	// Scores ranks every candidate, best first. Empty on the urgent fast path.
	Scores   []Score
	FastPath bool
}

// RouteKey derives the performance ledger key for msg.
func RouteKey(msg *messaging.Message) string {
	return fmt.Sprintf("%s->%s:%s:%s", msg.From, msg.To, msg.Priority, msg.Kind)
}

// Analyze selects a route kind for msg. It reads nothing but its arguments.
func Analyze(msg *messaging.Message, requested []Strategy, snap Snapshot, failed map[Kind]bool) Decision {
	key := RouteKey(msg)
	perf, inCache := snap.Routes[key]

	allowed := func(k Kind) bool {
		if failed[k] {
			return false
		}
		if k == KindDirect || len(snap.Registered) == 0 {
			return true
		}
		return slices.Contains(snap.Registered, k)
	}

	if msg.IsUrgent() {
		decision := Decision{Key: key, Kind: KindDirect, FastPath: true}
		if inCache && perf.Samples > 0 && perf.AvgLatencyMS < FastLatencyMS && allowed(KindCached) {
			decision.Kind = KindCached
		}
		return decision
	}

	scores := make(map[Kind]float64)
	for _, k := range Kinds() {
		switch {
		case k == KindCached && !inCache:
			continue
		case k == KindOptimized && !slices.Contains(requested, StrategyOptimization):
			continue
		case !allowed(k):
			continue
		}
		scores[k] = baseScores[k]
	}

	for _, s := range requested {
		if b, ok := strategyBonuses[s]; ok {
			if _, candidate := scores[b.kind]; candidate {
				scores[b.kind] += b.bonus
			}
		}
	}

	if _, ok := scores[KindCached]; ok {
		scores[KindCached] += perf.SuccessRate*5 - perf.AvgLatencyMS/20
	}

	if slices.Contains(requested, StrategyLoadBalancing) {
		for k := range scores {
			if hotSpot(k, snap.Usage) {
				scores[k]--
			}
		}
	}

	if len(scores) == 0 {
		return Decision{Key: key, Kind: KindDirect}
	}

	ranked := make([]Score, 0, len(scores))
	for k, v := range scores {
		ranked = append(ranked, Score{Kind: k, Score: v})
	}
	slices.SortFunc(ranked, func(a, b Score) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Kind.rank() - b.Kind.rank()
		}
	})

	return Decision{Key: key, Kind: ranked[0].Kind, Scores: ranked}
}

// hotSpot reports whether k carries more than twice the mean usage of the
// other route kinds.
func hotSpot(k Kind, usage map[Kind]int) bool {
	used := usage[k]
	if used == 0 {
		return false
	}
	var others, n int
	for _, other := range Kinds() {
		if other != k {
			others += usage[other]
			n++
		}
	}
	mean := float64(others) / float64(n)
	return float64(used) > 2*mean
}

type sample struct {
	latencyMS float64
	success   bool
}

type ledger struct {
	kind    Kind
	samples []sample
	usage   int
}

// Analyzer keeps the route performance ledger and applies Analyze to it.
// Safe for concurrent use.
type Analyzer struct {
	mu         sync.Mutex
	ledgers    map[string]*ledger
	usage      map[Kind]int
	maxSamples int

	manager  *Manager
	observer observability.Observer
	logger   *slog.Logger
}

type AnalyzerOption func(*Analyzer)

// WithManager restricts candidates to the kinds registered in m.
func WithManager(m *Manager) AnalyzerOption {
	return func(a *Analyzer) { a.manager = m }
}

func WithMaxSamples(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxSamples = n
		}
	}
}

func WithObserver(o observability.Observer) AnalyzerOption {
	return func(a *Analyzer) { a.observer = o }
}

func WithLogger(l *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.logger = l }
}

func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		ledgers:    make(map[string]*ledger),
		usage:      make(map[Kind]int),
		maxSamples: DefaultMaxSamples,
		observer:   observability.NoOpObserver{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze scores msg against snap. It is the package-level Analyze; the
// receiver is only a convenience for callers holding an Analyzer.
func (a *Analyzer) Analyze(msg *messaging.Message, requested []Strategy, snap Snapshot, failed map[Kind]bool) Decision {
	return Analyze(msg, requested, snap, failed)
}

// Select analyzes msg against the current snapshot and reports the choice.
func (a *Analyzer) Select(ctx context.Context, msg *messaging.Message, requested []Strategy, failed map[Kind]bool) Decision {
	decision := Analyze(msg, requested, a.Snapshot(), failed)

	a.observer.OnEvent(ctx, observability.NewEvent(EventRouteSelect, observability.LevelVerbose, "routing.Analyzer.Select", map[string]any{
		"message_id":           msg.ID,
		"key":                  decision.Key,
		observability.KeyRoute: string(decision.Kind),
		"fast_path":            decision.FastPath,
		"candidates":           len(decision.Scores),
		"failed_routes":        len(failed),
	}))

	return decision
}

// UpdateRoutePerformance appends one delivery sample for key. History is
// capped per key, dropping the oldest sample.
func (a *Analyzer) UpdateRoutePerformance(key string, kind Kind, latency time.Duration, success bool) {
	latencyMS := float64(latency) / float64(time.Millisecond)

	a.mu.Lock()
	l, ok := a.ledgers[key]
	if !ok {
		l = &ledger{}
		a.ledgers[key] = l
	}
	l.kind = kind
	l.samples = append(l.samples, sample{latencyMS: latencyMS, success: success})
	if over := len(l.samples) - a.maxSamples; over > 0 {
		l.samples = slices.Delete(l.samples, 0, over)
	}
	l.usage++
	a.usage[kind]++
	a.mu.Unlock()

	a.observer.OnEvent(context.Background(), observability.NewEvent(EventRouteRecord, observability.LevelVerbose, "routing.Analyzer.UpdateRoutePerformance", map[string]any{
		"key":                  key,
		observability.KeyRoute: string(kind),
		"sample_ms":            latencyMS,
		"success":              success,
	}))
}

// Snapshot copies the ledger into a Snapshot.
func (a *Analyzer) Snapshot() Snapshot {
	a.mu.Lock()
	snap := Snapshot{
		Routes: make(map[string]Performance, len(a.ledgers)),
		Usage:  maps.Clone(a.usage),
	}
	for key, l := range a.ledgers {
		snap.Routes[key] = l.performance()
	}
	a.mu.Unlock()

	if a.manager != nil {
		snap.Registered = a.manager.Kinds()
	}
	return snap
}

// Stats returns the performance of every recorded route key.
func (a *Analyzer) Stats() map[string]Performance {
	return a.Snapshot().Routes
}

func (l *ledger) performance() Performance {
	perf := Performance{Kind: l.kind, Samples: len(l.samples), UsageCount: l.usage}
	if len(l.samples) == 0 {
		return perf
	}

	var ok int
	var total float64
	for _, s := range l.samples {
		if s.success {
			ok++
		}
		total += s.latencyMS
	}
	perf.SuccessRate = float64(ok) / float64(len(l.samples))
	perf.AvgLatencyMS = total / float64(len(l.samples))
	return perf
}
