package policy

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/tailored-agentic-units/relay/messaging"
)

var ErrInvalidPolicy = errors.New("invalid policy")

// Required top-level keys of a policy document.
const (
	KeyVersion  = "version"
	KeyRoles    = "roles"
	KeyChannels = "channels"
	KeyPriority = "priority"
)

// RoleRule describes a sender role. Senders match a role either by name
// (case-insensitive) or by membership.
type RoleRule struct {
	Privileged bool     `json:"privileged" mapstructure:"privileged"`
	System     bool     `json:"system" mapstructure:"system"`
	Members    []string `json:"members,omitempty" mapstructure:"members"`
}

// ChannelRule gates one message kind. Only an explicit false disables it.
type ChannelRule struct {
	Enabled *bool `json:"enabled,omitempty" mapstructure:"enabled"`
}

func (c ChannelRule) Disabled() bool {
	return c.Enabled != nil && !*c.Enabled
}

type PriorityRule struct {
	RequiresPrivileged bool `json:"requires_privileged" mapstructure:"requires_privileged"`
}

// Document is a versioned rule set.
type Document struct {
	Version  string                  `json:"version" mapstructure:"version"`
	Roles    map[string]RoleRule     `json:"roles" mapstructure:"roles"`
	Channels map[string]ChannelRule  `json:"channels" mapstructure:"channels"`
	Priority map[string]PriorityRule `json:"priority,omitempty" mapstructure:"priority"`
}

// DefaultDocument returns the built-in policy: a "captain" privileged role, a
// "system" role, every kind enabled and urgent messages reserved for
// privileged senders.
func DefaultDocument() *Document {
	return &Document{
		Version: "1",
		Roles: map[string]RoleRule{
			"captain": {Privileged: true},
			"system":  {System: true},
		},
		Channels: map[string]ChannelRule{},
		Priority: map[string]PriorityRule{
			string(messaging.PriorityUrgent): {RequiresPrivileged: true},
		},
	}
}

// Validate checks the decoded document for structural problems.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidPolicy)
	}
	if strings.TrimSpace(d.Version) == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidPolicy, KeyVersion)
	}
	if d.Roles == nil {
		return fmt.Errorf("%w: missing %s", ErrInvalidPolicy, KeyRoles)
	}
	if d.Channels == nil {
		return fmt.Errorf("%w: missing %s", ErrInvalidPolicy, KeyChannels)
	}
	for kind := range d.Channels {
		if !messaging.Kind(kind).Valid() {
			return fmt.Errorf("%w: unknown channel %q", ErrInvalidPolicy, kind)
		}
	}
	for prio := range d.Priority {
		if !messaging.Priority(prio).Valid() {
			return fmt.Errorf("%w: unknown priority %q", ErrInvalidPolicy, prio)
		}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	clone := &Document{
		Version:  d.Version,
		Roles:    make(map[string]RoleRule, len(d.Roles)),
		Channels: maps.Clone(d.Channels),
		Priority: maps.Clone(d.Priority),
	}
	for name, role := range d.Roles {
		role.Members = slices.Clone(role.Members)
		clone.Roles[name] = role
	}
	if clone.Channels == nil {
		clone.Channels = map[string]ChannelRule{}
	}
	return clone
}

// rolesOf returns the merged rule of every role the sender matches, by
// role name or membership. A sender is privileged or system when any of
// its roles is.
func (d *Document) rolesOf(sender string) (RoleRule, bool) {
	var (
		merged  RoleRule
		matched bool
	)
	for _, name := range slices.Sorted(maps.Keys(d.Roles)) {
		role := d.Roles[name]
		if !strings.EqualFold(name, sender) && !slices.ContainsFunc(role.Members, func(member string) bool {
			return strings.EqualFold(member, sender)
		}) {
			continue
		}
		matched = true
		merged.Privileged = merged.Privileged || role.Privileged
		merged.System = merged.System || role.System
	}
	return merged, matched
}

// ValidatePolicy reports whether raw policy data carries the required
// top-level keys (version, roles, channels).
func ValidatePolicy(data map[string]any) bool {
	if data == nil {
		return false
	}
	for _, key := range []string{KeyVersion, KeyRoles, KeyChannels} {
		if _, ok := data[key]; !ok {
			return false
		}
	}
	return true
}
