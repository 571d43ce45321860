package routing

import (
	"errors"
	"fmt"
	"slices"
)

// Kind is a delivery route kind.
type Kind string

const (
	KindCached       Kind = "cached"
	KindDirect       Kind = "direct"
	KindOptimized    Kind = "optimized"
	KindBatched      Kind = "batched"
	KindLoadBalanced Kind = "load_balanced"
	KindQueued       Kind = "queued"
)

// Kinds returns every route kind in tie-break order.
func Kinds() []Kind {
	return []Kind{
		KindCached,
		KindDirect,
		KindOptimized,
		KindBatched,
		KindLoadBalanced,
		KindQueued,
	}
}

func (k Kind) Valid() bool {
	return slices.Contains(Kinds(), k)
}

// rank is the tie-break position of k; lower wins.
func (k Kind) rank() int {
	if i := slices.Index(Kinds(), k); i >= 0 {
		return i
	}
	return len(Kinds())
}

// ParseKind accepts a route kind name, including the hyphenated
// "load-balanced" spelling.
func ParseKind(s string) (Kind, error) {
	if s == "load-balanced" {
		return KindLoadBalanced, nil
	}
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Strategy is an optimization a caller requests from the Analyzer.
type Strategy string

const (
	StrategyBatching      Strategy = "batching"
	StrategyLoadBalancing Strategy = "load_balancing"
	StrategyCaching       Strategy = "caching"
	StrategyOptimization  Strategy = "optimization"
)

var (
	ErrUnknownKind  = errors.New("unknown route kind")
	ErrInvalidRoute = errors.New("invalid route")
)

// Optimization holds the stats attached to a registered route.
type Optimization struct {
	SuccessRate float64 `json:"success_rate" mapstructure:"success_rate"`
	LatencyMS   float64 `json:"latency_ms" mapstructure:"latency_ms"`
	UsageCount  int     `json:"usage_count" mapstructure:"usage_count"`
}

// DefaultOptimization is assigned to routes registered without stats.
func DefaultOptimization() Optimization {
	return Optimization{SuccessRate: 1.0}
}

func (o Optimization) validate() error {
	if o.SuccessRate < 0 || o.SuccessRate > 1 {
		return fmt.Errorf("%w: success_rate %v outside [0,1]", ErrInvalidRoute, o.SuccessRate)
	}
	if o.LatencyMS < 0 {
		return fmt.Errorf("%w: negative latency_ms %v", ErrInvalidRoute, o.LatencyMS)
	}
	if o.UsageCount < 0 {
		return fmt.Errorf("%w: negative usage_count %d", ErrInvalidRoute, o.UsageCount)
	}
	return nil
}

// Route is a named entry in the Manager.
type Route struct {
	Name         string         `json:"name"`
	Kind         Kind           `json:"kind"`
	Optimization Optimization   `json:"optimization"`
	Config       map[string]any `json:"config,omitempty"`
}

// Stats is the reporting view of a route's optimization.
type Stats struct {
	Kind        Kind    `json:"kind"`
	SuccessRate float64 `json:"success_rate"`
	LatencyMS   float64 `json:"latency_ms"`
	UsageCount  int     `json:"usage_count"`
}
