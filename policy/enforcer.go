package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/observability"
)

// Policy event types.
const (
	EventDeny   observability.EventType = "policy.deny"
	EventReload observability.EventType = "policy.reload"
)

// Sender roles reported by Enforcer.Role.
const (
	RolePrivileged = "privileged"
	RoleSystem     = "system"
	RoleAgent      = "agent"
)

// Denial reasons.
const (
	ReasonUrgentRequiresPrivileged = "urgent messages require a privileged sender"
	ReasonKindDisabled             = "message kind disabled by policy"
)

// Decision is the outcome of enforcing policy on one message.
type Decision struct {
	Allowed bool
	Reason  string
	Version string
}

type Option func(*Enforcer)

func WithObserver(o observability.Observer) Option {
	return func(e *Enforcer) { e.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Enforcer) { e.logger = l }
}

// Enforcer applies a loaded Document to messages. Safe for concurrent use;
// Reload swaps the document atomically.
type Enforcer struct {
	doc      atomic.Pointer[Document]
	observer observability.Observer
	logger   *slog.Logger
}

// NewEnforcer validates doc and creates an Enforcer. A nil doc loads
// DefaultDocument.
func NewEnforcer(doc *Document, opts ...Option) (*Enforcer, error) {
	if doc == nil {
		doc = DefaultDocument()
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	e := &Enforcer{
		observer: observability.NoOpObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.doc.Store(doc.Clone())
	return e, nil
}

// Enforce evaluates the rules in order; the first failing rule denies.
func (e *Enforcer) Enforce(ctx context.Context, msg *messaging.Message) Decision {
	doc := e.doc.Load()
	decision := Decision{Allowed: true, Version: doc.Version}

	privileged := e.privileged(doc, msg.From)

	if rule, ok := doc.Priority[string(msg.Priority)]; ok && rule.RequiresPrivileged && !privileged {
		decision = Decision{Allowed: false, Reason: ReasonUrgentRequiresPrivileged, Version: doc.Version}
	} else if channel, ok := doc.Channels[string(msg.Kind)]; ok && channel.Disabled() {
		decision = Decision{Allowed: false, Reason: ReasonKindDisabled, Version: doc.Version}
	}

	if !decision.Allowed {
		e.observer.OnEvent(ctx, observability.NewEvent(EventDeny, observability.LevelInfo, "policy.Enforce", map[string]any{
			"message_id": msg.ID,
			"sender":     msg.From,
			"recipient":  msg.To,
			"kind":       string(msg.Kind),
			"priority":   string(msg.Priority),
			"reason":     decision.Reason,
			"version":    doc.Version,
		}))
	}

	return decision
}

// Allow is Enforce without the reason.
func (e *Enforcer) Allow(msg *messaging.Message) bool {
	return e.Enforce(context.Background(), msg).Allowed
}

// Reload validates doc and makes it the active policy.
func (e *Enforcer) Reload(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("reload rejected: %w", err)
	}

	previous := e.doc.Swap(doc.Clone())

	e.logger.InfoContext(
		ctx,
		"policy reloaded",
		slog.String("previous_version", previous.Version),
		slog.String("version", doc.Version),
	)
	e.observer.OnEvent(ctx, observability.NewEvent(EventReload, observability.LevelInfo, "policy.Reload", map[string]any{
		"previous_version": previous.Version,
		"version":          doc.Version,
	}))

	return nil
}

// ReloadFrom loads a document from src and reloads it.
func (e *Enforcer) ReloadFrom(ctx context.Context, src Source) error {
	doc, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload from source: %w", err)
	}
	return e.Reload(ctx, doc)
}

// Document returns a copy of the active policy.
func (e *Enforcer) Document() *Document {
	return e.doc.Load().Clone()
}

// IsPrivileged reports whether sender belongs to a privileged role.
func (e *Enforcer) IsPrivileged(sender string) bool {
	return e.privileged(e.doc.Load(), sender)
}

// IsSystem reports whether sender belongs to a system role.
func (e *Enforcer) IsSystem(sender string) bool {
	role, ok := e.doc.Load().rolesOf(sender)
	return ok && role.System
}

// Role classifies sender as RolePrivileged, RoleSystem or RoleAgent.
func (e *Enforcer) Role(sender string) string {
	role, ok := e.doc.Load().rolesOf(sender)
	switch {
	case ok && role.Privileged:
		return RolePrivileged
	case ok && role.System:
		return RoleSystem
	default:
		return RoleAgent
	}
}

func (e *Enforcer) privileged(doc *Document, sender string) bool {
	role, ok := doc.rolesOf(sender)
	return ok && role.Privileged
}

// CheckPermissions is the capability check for sender to reach recipient
// with the given kind. It currently allows every combination: privileged
// senders may reach anyone, agents may reach agents, and the default is allow.
func (e *Enforcer) CheckPermissions(sender, recipient string, kind messaging.Kind) bool {
	if e.IsPrivileged(sender) {
		return true
	}
	if e.Role(sender) == RoleAgent && e.Role(recipient) == RoleAgent {
		return true
	}
	return true
}
