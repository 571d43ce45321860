package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/relay/messaging"
)

// decode copies a request struct onto output.
func decode(input *structpb.Struct, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(input.AsMap())
}

// encode renders v through its JSON shape.
func encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to build response struct: %w", err)
	}
	return out, nil
}

// unpack is the inverse of encode on the client side.
func unpack(s *structpb.Struct, output any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal response struct: %w", err)
	}
	if err := json.Unmarshal(data, output); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// parseTimeout reads a Go duration string. Empty means zero.
func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	return d, nil
}

// Message builds the message r describes.
func (r MessageRequest) Message() *messaging.Message {
	b := messaging.NewMessage(r.From, r.To, r.Content)
	if r.Kind != "" {
		b.Kind(messaging.Kind(r.Kind))
	}
	if r.Priority != "" {
		b.Priority(messaging.Priority(r.Priority))
	}
	if len(r.Tags) > 0 {
		b.Tags(r.Tags...)
	}
	for k, v := range r.Metadata {
		b.Metadata(k, v)
	}
	if r.ID != "" {
		b.ID(r.ID)
	}
	return b.Build()
}

func messageRequest(msg *messaging.Message) MessageRequest {
	return MessageRequest{
		ID:       msg.ID,
		From:     msg.From,
		To:       msg.To,
		Content:  msg.Content,
		Kind:     string(msg.Kind),
		Priority: string(msg.Priority),
		Tags:     msg.Tags,
		Metadata: msg.Metadata,
	}
}
