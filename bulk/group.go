package bulk

import (
	"github.com/tailored-agentic-units/relay/messaging"
	"github.com/tailored-agentic-units/relay/strategy"
)

// GroupByPriority partitions msgs by priority. Nil messages are skipped.
func GroupByPriority(msgs []*messaging.Message) map[string][]*messaging.Message {
	return groupBy(msgs, func(msg *messaging.Message) string {
		return string(msg.Priority)
	})
}

func GroupByKind(msgs []*messaging.Message) map[string][]*messaging.Message {
	return groupBy(msgs, func(msg *messaging.Message) string {
		return string(msg.Kind)
	})
}

// GroupBySenderRole partitions msgs by the role classifier assigns to each
// sender. A nil classifier puts every message under strategy.RoleAgent.
func GroupBySenderRole(msgs []*messaging.Message, classifier strategy.Classifier) map[string][]*messaging.Message {
	return groupBy(msgs, func(msg *messaging.Message) string {
		if classifier == nil {
			return strategy.RoleAgent
		}
		return classifier.Role(msg.From)
	})
}

// Counts reports the size of every group.
func Counts(groups map[string][]*messaging.Message) map[string]int {
	counts := make(map[string]int, len(groups))
	for key, msgs := range groups {
		counts[key] = len(msgs)
	}
	return counts
}

func groupBy(msgs []*messaging.Message, key func(*messaging.Message) string) map[string][]*messaging.Message {
	groups := make(map[string][]*messaging.Message)
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		k := key(msg)
		groups[k] = append(groups[k], msg)
	}
	return groups
}
