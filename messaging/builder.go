package messaging

import (
	"slices"
	"time"
)

type MessageBuilder struct {
	message *Message
}

// NewMessage starts an agent-to-agent message with regular priority.
func NewMessage(from, to, content string) *MessageBuilder {
	return &MessageBuilder{
		message: &Message{
			ID:        generateID(),
			From:      from,
			To:        to,
			Content:   content,
			Kind:      KindAgentToAgent,
			Priority:  PriorityRegular,
			Timestamp: time.Now(),
		},
	}
}

func NewBroadcast(from, to, content string) *MessageBuilder {
	return NewMessage(from, to, content).Kind(KindBroadcast)
}

func NewOnboarding(from, to, content string) *MessageBuilder {
	return NewMessage(from, to, content).Kind(KindOnboarding)
}

func (mb *MessageBuilder) Kind(kind Kind) *MessageBuilder {
	mb.message.Kind = kind
	return mb
}

func (mb *MessageBuilder) Priority(priority Priority) *MessageBuilder {
	mb.message.Priority = priority
	return mb
}

func (mb *MessageBuilder) Urgent() *MessageBuilder {
	return mb.Priority(PriorityUrgent)
}

// Tags adds tags to the set, ignoring duplicates.
func (mb *MessageBuilder) Tags(tags ...string) *MessageBuilder {
	for _, tag := range tags {
		if tag != "" && !slices.Contains(mb.message.Tags, tag) {
			mb.message.Tags = append(mb.message.Tags, tag)
		}
	}
	return mb
}

func (mb *MessageBuilder) Metadata(key string, value any) *MessageBuilder {
	if mb.message.Metadata == nil {
		mb.message.Metadata = make(map[string]any)
	}
	mb.message.Metadata[key] = value
	return mb
}

func (mb *MessageBuilder) ID(id string) *MessageBuilder {
	mb.message.ID = id
	return mb
}

func (mb *MessageBuilder) Build() *Message {
	return mb.message
}
