package config

// RouteConfig registers one named route at startup.
type RouteConfig struct {
	Name        string         `json:"name" yaml:"name"`
	Kind        string         `json:"kind" yaml:"kind"`
	SuccessRate float64        `json:"success_rate" yaml:"success_rate"`
	LatencyMS   float64        `json:"latency_ms" yaml:"latency_ms"`
	Config      map[string]any `json:"config,omitempty" yaml:"config"`
}

// RoutingConfig configures the route analyzer and the initial route registry.
type RoutingConfig struct {
	MaxSamples int           `json:"max_samples" yaml:"max_samples"`
	Routes     []RouteConfig `json:"routes,omitempty" yaml:"routes"`
}

func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		MaxSamples: 500,
	}
}

func (c *RoutingConfig) Merge(source *RoutingConfig) {
	if source.MaxSamples > 0 {
		c.MaxSamples = source.MaxSamples
	}

	if len(source.Routes) > 0 {
		c.Routes = source.Routes
	}
}
