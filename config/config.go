package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config holds initialization parameters for every relay subsystem.
type Config struct {
	Queue   QueueConfig   `json:"queue" yaml:"queue"`
	Routing RoutingConfig `json:"routing" yaml:"routing"`
	Bulk    BulkConfig    `json:"bulk" yaml:"bulk"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Policy  PolicyConfig  `json:"policy" yaml:"policy"`
	Server  ServerConfig  `json:"server" yaml:"server"`

	// Strategies holds partial routing configs keyed by strategy name,
	// applied over the built-in strategy table.
	Strategies map[string]map[string]any `json:"strategies,omitempty" yaml:"strategies"`

	LogLevel string `json:"log_level" yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Queue:    DefaultQueueConfig(),
		Routing:  DefaultRoutingConfig(),
		Bulk:     DefaultBulkConfig(),
		Journal:  DefaultJournalConfig(),
		Policy:   DefaultPolicyConfig(),
		Server:   DefaultServerConfig(),
		LogLevel: "info",
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge.
func (c *Config) Merge(source *Config) {
	c.Queue.Merge(&source.Queue)
	c.Routing.Merge(&source.Routing)
	c.Bulk.Merge(&source.Bulk)
	c.Journal.Merge(&source.Journal)
	c.Policy.Merge(&source.Policy)
	c.Server.Merge(&source.Server)

	if len(source.Strategies) > 0 {
		c.Strategies = source.Strategies
	}

	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
}

// Load reads a YAML or JSON config file, expands environment references,
// merges it with defaults and returns the resulting Config.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for in-memory data.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	raw, err := parseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	var loaded Config
	if err := Decode(expandEnvVars(raw), &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// Decode decodes a generic map into output using the yaml field names,
// accepting duration strings such as "1s".
func Decode(input any, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}

func parseBytes(data []byte) (map[string]any, error) {
	var result map[string]any

	if err := yaml.Unmarshal(data, &result); err == nil {
		return result, nil
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("not YAML or JSON: %w", err)
	}
	return result, nil
}

func expandEnvVars(input map[string]any) map[string]any {
	result := make(map[string]any, len(input))
	for k, v := range input {
		result[k] = expandValue(v)
	}
	return result
}

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		return expandEnvVars(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = expandValue(item)
		}
		return result
	default:
		return v
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		inner := match[2 : len(match)-1]

		if name, fallback, ok := strings.Cut(inner, ":-"); ok {
			if val := os.Getenv(name); val != "" {
				return val
			}
			return fallback
		}
		return os.Getenv(inner)
	})
}
