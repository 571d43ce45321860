package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/relay/bulk"
	"github.com/tailored-agentic-units/relay/config"
	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/policy"
	"github.com/tailored-agentic-units/relay/strategy"
	"github.com/tailored-agentic-units/relay/transport"
)

type SendCmd struct {
	Server  string        `help:"Relay server URL." default:"http://localhost:8080" env:"RELAY_SERVER"`
	From    string        `help:"Sender." required:""`
	To      string        `help:"Recipient." required:""`
	Kind    string        `help:"Message kind." default:"agent_to_agent"`
	Urgent  bool          `help:"Send with urgent priority."`
	Tags    []string      `help:"Message tags."`
	Timeout time.Duration `help:"How long to wait for delivery." default:"30s"`
	Content string        `arg:"" help:"Message content."`
}

func (c *SendCmd) Run() error {
	b := messaging.NewMessage(c.From, c.To, c.Content).Kind(messaging.Kind(c.Kind)).Tags(c.Tags...)
	if c.Urgent {
		b.Urgent()
	}

	client := transport.NewClient(nil, c.Server)
	result, err := client.Send(context.Background(), b.Build(), c.Timeout)
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return printJSON(result)
}

type BulkCmd struct {
	Policy string `help:"Policy document used to classify senders." type:"path"`
	Server string `help:"Also enqueue each coordinated message on this relay server."`
	File   string `arg:"" help:"YAML or JSON list of messages." type:"existingfile"`
}

func (c *BulkCmd) Run() error {
	ctx := context.Background()

	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read messages: %w", err)
	}
	var requests []transport.MessageRequest
	if err := yaml.Unmarshal(data, &requests); err != nil {
		return fmt.Errorf("failed to parse messages: %w", err)
	}
	msgs := make([]*messaging.Message, len(requests))
	for i, r := range requests {
		msgs[i] = r.Message()
	}

	var doc *policy.Document
	if c.Policy != "" {
		source, err := policy.NewFileSource(c.Policy)
		if err != nil {
			return err
		}
		defer source.Close()
		if doc, err = source.Load(ctx); err != nil {
			return err
		}
	}
	enforcer, err := policy.NewEnforcer(doc)
	if err != nil {
		return err
	}

	var opts []bulk.Option
	if c.Server != "" {
		opts = append(opts, bulk.WithDispatcher(transport.NewClient(nil, c.Server)))
	}
	coordinator, err := bulk.New(config.BulkConfig{}, strategy.New(strategy.WithClassifier(enforcer)), opts...)
	if err != nil {
		return err
	}

	report := coordinator.CoordinateBulk(ctx, msgs)
	return printJSON(map[string]any{
		"report":      report,
		"by_role":     bulk.Counts(bulk.GroupBySenderRole(msgs, enforcer)),
		"by_kind":     bulk.Counts(bulk.GroupByKind(msgs)),
		"by_priority": bulk.Counts(bulk.GroupByPriority(msgs)),
	})
}

type ValidatePolicyCmd struct {
	File string `arg:"" help:"Policy document to validate." type:"existingfile"`
}

func (c *ValidatePolicyCmd) Run() error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read policy: %w", err)
	}
	doc, err := policy.Parse(data)
	if err != nil {
		return err
	}
	fmt.Printf("policy %s is valid (version %s, %d roles, %d channels)\n", c.File, doc.Version, len(doc.Roles), len(doc.Channels))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
