package config

import "time"

// PolicyConfig points at the policy document. An empty Path uses the
// built-in policy.
type PolicyConfig struct {
	Path  string `json:"path" yaml:"path"`
	Watch bool   `json:"watch" yaml:"watch"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{}
}

func (c *PolicyConfig) Merge(source *PolicyConfig) {
	if source.Path != "" {
		c.Path = source.Path
	}

	if source.Watch {
		c.Watch = true
	}
}

// ServerConfig configures the RPC server and its file-drop backend.
type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	InboxRoot       string        `json:"inbox_root" yaml:"inbox_root"`
	RequireInbox    bool          `json:"require_inbox" yaml:"require_inbox"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ShutdownTimeout: 10 * time.Second,
		InboxRoot:       "inbox",
	}
}

func (c *ServerConfig) Merge(source *ServerConfig) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}

	if source.ShutdownTimeout > 0 {
		c.ShutdownTimeout = source.ShutdownTimeout
	}

	if source.InboxRoot != "" {
		c.InboxRoot = source.InboxRoot
	}

	if source.RequireInbox {
		c.RequireInbox = true
	}
}
