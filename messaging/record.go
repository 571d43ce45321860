package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the persisted shape of a message.
type Record struct {
	ID          string         `json:"id,omitempty" mapstructure:"id"`
	Type        string         `json:"type" mapstructure:"type"`
	Sender      string         `json:"sender" mapstructure:"sender"`
	Recipient   string         `json:"recipient" mapstructure:"recipient"`
	Content     string         `json:"content" mapstructure:"content"`
	Priority    string         `json:"priority" mapstructure:"priority"`
	MessageKind string         `json:"message_kind" mapstructure:"message_kind"`
	Tags        []string       `json:"tags" mapstructure:"tags"`
	Metadata    map[string]any `json:"metadata" mapstructure:"metadata"`
	Timestamp   time.Time      `json:"timestamp,omitzero" mapstructure:"-"`
}

// ToRecord converts msg to its persisted shape.
func ToRecord(msg *Message) Record {
	tags := msg.Tags
	if tags == nil {
		tags = []string{}
	}
	metadata := msg.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Record{
		ID:          msg.ID,
		Type:        string(msg.Kind),
		Sender:      msg.From,
		Recipient:   msg.To,
		Content:     msg.Content,
		Priority:    string(msg.Priority),
		MessageKind: string(msg.Kind),
		Tags:        tags,
		Metadata:    metadata,
		Timestamp:   msg.Timestamp,
	}
}

// Message rebuilds a Message from the record. Missing id, kind or priority
// are filled with defaults; the result is not validated.
func (r Record) Message() *Message {
	kind := Kind(r.MessageKind)
	if kind == "" {
		kind = Kind(r.Type)
	}
	if kind == "" {
		kind = KindAgentToAgent
	}

	priority := Priority(r.Priority)
	if priority == "" {
		priority = PriorityRegular
	}

	b := NewMessage(r.Sender, r.Recipient, r.Content).
		Kind(kind).
		Priority(priority).
		Tags(r.Tags...)
	if r.ID != "" {
		b.ID(r.ID)
	}
	for k, v := range r.Metadata {
		b.Metadata(k, v)
	}

	msg := b.Build()
	if !r.Timestamp.IsZero() {
		msg.Timestamp = r.Timestamp
	}
	return msg
}

// EncodeRecord serializes msg in its persisted shape. Metadata values that
// cannot be represented in JSON produce an error.
func EncodeRecord(msg *Message) ([]byte, error) {
	data, err := json.Marshal(ToRecord(msg))
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", msg.ID, err)
	}
	return data, nil
}

func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}
