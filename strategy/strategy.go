package strategy

import (
	"errors"
	"time"

	"github.com/tailored-agentic-units/relay/routing"
)

// Strategy names.
const (
	Privileged = "privileged-priority"
	Urgent     = "urgent-delivery"
	System     = "system-priority"
	Broadcast  = "broadcast-delivery"
	Standard   = "standard-delivery"
)

// Rule categories.
const (
	CategoryPriority = "priority"
	CategoryKind     = "kind"
	CategorySender   = "sender"
)

// DefaultEstimate is the estimated delivery time of an unknown strategy.
const DefaultEstimate = 500 * time.Millisecond

var ErrNilMessage = errors.New("nil message")

// RoutingConfig is the delivery configuration attached to a strategy.
type RoutingConfig struct {
	DeliveryMethod string             `json:"delivery_method" mapstructure:"delivery_method"`
	RetryAttempts  int                `json:"retry_attempts" mapstructure:"retry_attempts"`
	Timeout        time.Duration      `json:"timeout" mapstructure:"timeout"`
	Optimizations  []routing.Strategy `json:"optimizations,omitempty" mapstructure:"optimizations"`
}

func (c RoutingConfig) clone() RoutingConfig {
	c.Optimizations = append([]routing.Strategy(nil), c.Optimizations...)
	return c
}

// Plan is the coordination result for one message.
type Plan struct {
	Strategy          string         `json:"strategy"`
	RulesApplied      []string       `json:"rules_applied"`
	Routing           RoutingConfig  `json:"routing"`
	Directives        map[string]any `json:"directives,omitempty"`
	EstimatedDelivery time.Duration  `json:"estimated_delivery"`
}

// Classifier resolves sender roles. *policy.Enforcer satisfies it.
type Classifier interface {
	IsPrivileged(sender string) bool
	Role(sender string) string
}

// Sender roles used as keys of the sender rule category.
const (
	RolePrivileged = "privileged"
	RoleSystem     = "system"
	RoleAgent      = "agent"
)

type noClassifier struct{}

func (noClassifier) IsPrivileged(string) bool { return false }
func (noClassifier) Role(string) string       { return RoleAgent }

func defaultRoutingConfigs() map[string]RoutingConfig {
	return map[string]RoutingConfig{
		Privileged: {
			DeliveryMethod: "immediate",
			RetryAttempts:  5,
			Timeout:        10 * time.Second,
			Optimizations:  []routing.Strategy{routing.StrategyCaching},
		},
		Urgent: {
			DeliveryMethod: "immediate",
			RetryAttempts:  5,
			Timeout:        10 * time.Second,
			Optimizations:  []routing.Strategy{routing.StrategyCaching},
		},
		System: {
			DeliveryMethod: "priority",
			RetryAttempts:  3,
			Timeout:        20 * time.Second,
			Optimizations:  []routing.Strategy{routing.StrategyOptimization},
		},
		Broadcast: {
			DeliveryMethod: "fanout",
			RetryAttempts:  3,
			Timeout:        30 * time.Second,
			Optimizations:  []routing.Strategy{routing.StrategyBatching, routing.StrategyLoadBalancing},
		},
		Standard: {
			DeliveryMethod: "standard",
			RetryAttempts:  3,
			Timeout:        30 * time.Second,
		},
	}
}

var estimates = map[string]time.Duration{
	Privileged: 100 * time.Millisecond,
	Urgent:     200 * time.Millisecond,
	System:     300 * time.Millisecond,
	Broadcast:  400 * time.Millisecond,
	Standard:   500 * time.Millisecond,
}

// Estimate returns the fixed estimated delivery time for a strategy name.
func Estimate(name string) time.Duration {
	if d, ok := estimates[name]; ok {
		return d
	}
	return DefaultEstimate
}

// defaultRules holds the built-in rule tables. Each rule value carries a
// "tag" recorded in Plan.RulesApplied; the remaining keys are directives.
func defaultRules() map[string]map[string]map[string]any {
	return map[string]map[string]map[string]any{
		CategoryPriority: {
			"urgent": {"tag": "urgent", "preempt": true},
		},
		CategoryKind: {
			"broadcast":       {"tag": "broadcast", "fanout": true},
			"onboarding":      {"tag": "onboarding", "admin": true},
			"system_to_agent": {"tag": "system_message", "admin": true},
			"multi_request":   {"tag": "multi_request", "collect_responses": true},
		},
		CategorySender: {
			RolePrivileged: {"tag": "privileged", "audit": true},
			RoleSystem:     {"tag": "system", "audit": true},
		},
	}
}
