// Package messaging provides the message primitives moved through the relay
// queue.
//
// A Message is an immutable value: once built it is only read by the policy,
// strategy, routing and queue layers. Messages are constructed with a fluent
// builder:
//
//	msg := messaging.NewMessage("Captain", "Agent-1", "status report please").
//	    Kind(messaging.KindCaptainToAgent).
//	    Priority(messaging.PriorityUrgent).
//	    Tags("status").
//	    Build()
//
// # Message Metadata
//
//   - ID: UUIDv7 providing time-sortable unique identification
//   - Timestamp: creation time
//   - Kind: what produced the message (agent-to-agent, onboarding, broadcast, ...)
//   - Priority: regular or urgent
//   - Tags: unordered label set
//   - Metadata: opaque key/value data carried through to the delivery backend
//
// # Records
//
// Record is the persisted shape of a message, used by the journal and the
// file-drop backend:
//
//	{"type": "agent_to_agent", "sender": "Agent-2", "recipient": "Agent-1",
//	 "content": "...", "priority": "regular", "message_kind": "agent_to_agent",
//	 "tags": [], "metadata": {}}
package messaging
