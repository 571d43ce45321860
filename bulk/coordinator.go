package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/relay/config"
	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/queue"
	"github.com/tailored-agentic-units/relay/strategy"
)

var ErrNilMessage = errors.New("nil message")

// Planner selects and applies a strategy. *strategy.Coordinator satisfies
// it.
type Planner interface {
	DetermineStrategy(msg *messaging.Message) string
	ApplyRules(msg *messaging.Message, name string) (strategy.Plan, error)
}

// Dispatcher receives coordinated messages. *queue.Queue satisfies it.
type Dispatcher interface {
	Enqueue(ctx context.Context, msg *messaging.Message) (string, error)
}

// MessageResult is the outcome of coordinating one message of a batch.
type MessageResult struct {
	// Index is the position of the message in the batch.
	Index     int      `json:"index"`
	MessageID string   `json:"message_id,omitempty"`
	Recipient string   `json:"recipient,omitempty"`
	Strategy  string   `json:"strategy,omitempty"`
	Rules     []string `json:"rules_applied,omitempty"`
	Success   bool     `json:"success"`
	Blocked   bool     `json:"blocked"`
	QueueID   string   `json:"queue_id,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Report aggregates a batch. Successful + Failed + Blocked == Total.
type Report struct {
	Total          int             `json:"total"`
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	Blocked        int             `json:"blocked"`
	ExecutionTime  time.Duration   `json:"execution_time"`
	Results        []MessageResult `json:"results"`
	StrategyCounts map[string]int  `json:"strategy_counts"`
}

type Option func(*Coordinator)

func WithDispatcher(d Dispatcher) Option {
	return func(c *Coordinator) { c.dispatcher = d }
}

func WithObserver(o observability.Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

type Coordinator struct {
	cfg        config.BulkConfig
	planner    Planner
	dispatcher Dispatcher
	observer   observability.Observer
	logger     *slog.Logger
}

// New creates a Coordinator. Zero fields of cfg take their defaults.
func New(cfg config.BulkConfig, planner Planner, opts ...Option) (*Coordinator, error) {
	if planner == nil {
		return nil, fmt.Errorf("bulk coordinator requires a planner")
	}

	merged := config.DefaultBulkConfig()
	merged.Merge(&cfg)

	observer, err := observability.ResolveObservers(merged.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	c := &Coordinator{
		cfg:      merged,
		planner:  planner,
		observer: observer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CoordinateBulk coordinates every message of msgs and returns the
// aggregated report. Results are in batch order.
func (c *Coordinator) CoordinateBulk(ctx context.Context, msgs []*messaging.Message) Report {
	start := time.Now()
	workers := c.cfg.Workers(len(msgs))

	c.observer.OnEvent(ctx, observability.NewEvent(EventBulkStart, observability.LevelInfo, "bulk.CoordinateBulk", map[string]any{
		"message_count": len(msgs),
		"worker_count":  workers,
	}))

	results := make([]MessageResult, len(msgs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, msg := range msgs {
		g.Go(func() error {
			results[i] = c.coordinate(ctx, i, msg)
			return nil
		})
	}
	g.Wait()

	report := Report{
		Total:          len(msgs),
		Results:        results,
		StrategyCounts: make(map[string]int),
	}
	for _, r := range results {
		switch {
		case r.Success:
			report.Successful++
		case r.Blocked:
			report.Blocked++
		default:
			report.Failed++
		}
		if r.Strategy != "" {
			report.StrategyCounts[r.Strategy]++
		}
	}
	report.ExecutionTime = time.Since(start)

	c.observer.OnEvent(ctx, observability.NewEvent(EventBulkComplete, observability.LevelInfo, "bulk.CoordinateBulk", map[string]any{
		"total":             report.Total,
		"successful":        report.Successful,
		"failed":            report.Failed,
		"blocked":           report.Blocked,
		"execution_time_ms": report.ExecutionTime.Milliseconds(),
	}))

	return report
}

func (c *Coordinator) coordinate(ctx context.Context, index int, msg *messaging.Message) (result MessageResult) {
	result.Index = index

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Blocked = false
			result.Error = fmt.Sprintf("panic during coordination: %v", r)
		}

		if !result.Success && !result.Blocked {
			c.logger.WarnContext(
				ctx,
				"bulk message failed",
				slog.Int("index", index),
				slog.String("message_id", result.MessageID),
				slog.String("error", result.Error),
			)
		}

		c.observer.OnEvent(ctx, observability.NewEvent(EventBulkMessage, observability.LevelVerbose, "bulk.coordinate", map[string]any{
			"index":      index,
			"message_id": result.MessageID,
			"strategy":   result.Strategy,
			"success":    result.Success,
			"blocked":    result.Blocked,
		}))
	}()

	if msg == nil {
		result.Error = ErrNilMessage.Error()
		return result
	}
	result.MessageID = msg.ID
	result.Recipient = msg.To

	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	name := c.planner.DetermineStrategy(msg)
	result.Strategy = name

	plan, err := c.planner.ApplyRules(msg, name)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Rules = plan.RulesApplied

	if c.dispatcher != nil {
		id, err := c.dispatcher.Enqueue(ctx, msg)
		if err != nil {
			var admission *queue.AdmissionError
			if errors.As(err, &admission) && admission.Denied() {
				result.Blocked = true
				result.Error = admission.Reason
				return result
			}
			result.Error = err.Error()
			return result
		}
		result.QueueID = id
	}

	result.Success = true
	return result
}
