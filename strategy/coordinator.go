package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/observability"
)

const EventStrategySelect observability.EventType = "strategy.select"

// Coordinator holds the strategy and rule tables. Safe for concurrent use;
// updates replace single entries and never disturb unrelated ones.
type Coordinator struct {
	mu      sync.RWMutex
	configs map[string]RoutingConfig
	rules   map[string]map[string]map[string]any

	classifier Classifier
	observer   observability.Observer
	logger     *slog.Logger
}

type Option func(*Coordinator)

// WithClassifier sets how sender roles are resolved. Without one every
// sender is an unprivileged agent.
func WithClassifier(c Classifier) Option {
	return func(co *Coordinator) {
		if c != nil {
			co.classifier = c
		}
	}
}

func WithObserver(o observability.Observer) Option {
	return func(co *Coordinator) { co.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) { co.logger = l }
}

func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		configs:    defaultRoutingConfigs(),
		rules:      defaultRules(),
		classifier: noClassifier{},
		observer:   observability.NoOpObserver{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DetermineStrategy selects one strategy name for msg.
func (c *Coordinator) DetermineStrategy(msg *messaging.Message) string {
	switch {
	case c.classifier.IsPrivileged(msg.From):
		return Privileged
	case msg.IsUrgent():
		return Urgent
	case msg.Kind == messaging.KindOnboarding || msg.Kind == messaging.KindSystemToAgent:
		return System
	case msg.IsBroadcast():
		return Broadcast
	default:
		return Standard
	}
}

// ApplyRules builds the plan for msg under the named strategy. An unknown
// name uses the standard routing config and DefaultEstimate.
func (c *Coordinator) ApplyRules(msg *messaging.Message, name string) (Plan, error) {
	if msg == nil {
		return Plan{}, ErrNilMessage
	}

	c.mu.RLock()
	cfg, ok := c.configs[name]
	if !ok {
		cfg = c.configs[Standard]
	}
	cfg = cfg.clone()

	matches := []map[string]any{
		c.rules[CategoryPriority][string(msg.Priority)],
		c.rules[CategoryKind][string(msg.Kind)],
		c.rules[CategorySender][c.classifier.Role(msg.From)],
	}
	c.mu.RUnlock()

	plan := Plan{
		Strategy:          name,
		RulesApplied:      []string{},
		Directives:        map[string]any{},
		EstimatedDelivery: Estimate(name),
	}

	keys := []string{string(msg.Priority), string(msg.Kind), c.classifier.Role(msg.From)}
	for i, rule := range matches {
		if rule == nil {
			continue
		}
		tag, _ := rule["tag"].(string)
		if tag == "" {
			tag = keys[i]
		}
		if !slices.Contains(plan.RulesApplied, tag) {
			plan.RulesApplied = append(plan.RulesApplied, tag)
		}
		for k, v := range rule {
			if k != "tag" {
				plan.Directives[k] = v
			}
		}
	}

	if err := decodeRouting(plan.Directives, &cfg); err != nil {
		return Plan{}, fmt.Errorf("strategy %s: %w", name, err)
	}
	plan.Routing = cfg

	return plan, nil
}

// Coordinate validates msg, determines its strategy and applies the rules.
func (c *Coordinator) Coordinate(ctx context.Context, msg *messaging.Message) (Plan, error) {
	if msg == nil {
		return Plan{}, ErrNilMessage
	}
	if err := msg.Validate(); err != nil {
		return Plan{}, err
	}

	plan, err := c.ApplyRules(msg, c.DetermineStrategy(msg))
	if err != nil {
		return Plan{}, err
	}

	c.observer.OnEvent(ctx, observability.NewEvent(EventStrategySelect, observability.LevelVerbose, "strategy.Coordinate", map[string]any{
		"message_id":     msg.ID,
		"strategy":       plan.Strategy,
		"rules_applied":  len(plan.RulesApplied),
		"retry_attempts": plan.Routing.RetryAttempts,
	}))

	return plan, nil
}

// UpdateRule sets one rule entry. It returns false for an unknown category.
func (c *Coordinator) UpdateRule(category, key string, value map[string]any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	table, ok := c.rules[category]
	if !ok {
		return false
	}
	table[key] = maps.Clone(value)

	c.logger.Debug("strategy rule updated",
		slog.String("category", category),
		slog.String("key", key))
	return true
}

// UpdateRoutingConfig decodes partial over a copy of the named strategy's
// routing config. It returns false for an unknown strategy or a partial that
// does not decode.
func (c *Coordinator) UpdateRoutingConfig(name string, partial map[string]any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.configs[name]
	if !ok {
		return false
	}

	next := current.clone()
	if err := decodeRouting(partial, &next); err != nil {
		c.logger.Warn("routing config update rejected",
			slog.String("strategy", name),
			slog.String("error", err.Error()))
		return false
	}

	c.configs[name] = next
	return true
}

// RoutingConfig returns a copy of the named strategy's routing config.
func (c *Coordinator) RoutingConfig(name string) (RoutingConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, ok := c.configs[name]
	return cfg.clone(), ok
}

// Strategies lists the known strategy names in sorted order.
func (c *Coordinator) Strategies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.configs))
}

// SenderRole exposes the classifier's role for sender.
func (c *Coordinator) SenderRole(sender string) string {
	return c.classifier.Role(sender)
}

func decodeRouting(input map[string]any, output *RoutingConfig) error {
	if len(input) == 0 {
		return nil
	}
	if _, ok := input["optimizations"]; ok {
		output.Optimizations = nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode routing config: %w", err)
	}
	return nil
}
