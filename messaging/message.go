package messaging

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what produced a message.
type Kind string

const (
	KindText           Kind = "text"
	KindBroadcast      Kind = "broadcast"
	KindOnboarding     Kind = "onboarding"
	KindAgentToAgent   Kind = "agent_to_agent"
	KindSystemToAgent  Kind = "system_to_agent"
	KindCaptainToAgent Kind = "captain_to_agent"
	KindHumanToAgent   Kind = "human_to_agent"
	KindMultiRequest   Kind = "multi_request"
)

// Kinds lists every known message kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindText,
		KindBroadcast,
		KindOnboarding,
		KindAgentToAgent,
		KindSystemToAgent,
		KindCaptainToAgent,
		KindHumanToAgent,
		KindMultiRequest,
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds(), k)
}

type Priority string

const (
	PriorityRegular Priority = "regular"
	PriorityUrgent  Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityRegular || p == PriorityUrgent
}

// Validation errors returned by Message.Validate.
var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrEmptyID        = fmt.Errorf("%w: empty id", ErrInvalidMessage)
	ErrEmptySender    = fmt.Errorf("%w: empty sender", ErrInvalidMessage)
	ErrEmptyRecipient = fmt.Errorf("%w: empty recipient", ErrInvalidMessage)
	ErrEmptyContent   = fmt.Errorf("%w: empty content", ErrInvalidMessage)
	ErrUnknownKind    = fmt.Errorf("%w: unknown kind", ErrInvalidMessage)
	ErrUnknownPrio    = fmt.Errorf("%w: unknown priority", ErrInvalidMessage)
)

type Message struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Content   string         `json:"content"`
	Kind      Kind           `json:"kind"`
	Priority  Priority       `json:"priority"`
	Tags      []string       `json:"tags,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (msg *Message) IsUrgent() bool {
	return msg.Priority == PriorityUrgent
}

func (msg *Message) IsBroadcast() bool {
	return msg.Kind == KindBroadcast
}

// Validate checks the fields required for admission.
func (msg *Message) Validate() error {
	switch {
	case msg.ID == "":
		return ErrEmptyID
	case msg.From == "":
		return ErrEmptySender
	case msg.To == "":
		return ErrEmptyRecipient
	case msg.Content == "":
		return ErrEmptyContent
	case !msg.Kind.Valid():
		return fmt.Errorf("%w: %q", ErrUnknownKind, msg.Kind)
	case !msg.Priority.Valid():
		return fmt.Errorf("%w: %q", ErrUnknownPrio, msg.Priority)
	}
	return nil
}

// Clone returns a copy that shares no mutable state with msg.
func (msg *Message) Clone() *Message {
	clone := *msg
	clone.Tags = slices.Clone(msg.Tags)
	clone.Metadata = maps.Clone(msg.Metadata)
	return &clone
}

// Readdress returns a copy of msg sent to a different recipient under a new id.
func (msg *Message) Readdress(to string) *Message {
	clone := msg.Clone()
	clone.ID = generateID()
	clone.To = to
	return clone
}

func (msg *Message) String() string {
	return fmt.Sprintf(
		"Message{ID: %s, From: %s, To: %s, Kind: %s, Priority: %s}",
		msg.ID,
		msg.From,
		msg.To,
		msg.Kind,
		msg.Priority,
	)
}

func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}
