package config

import "time"

// QueueConfig configures the message queue and its delivery loop.
type QueueConfig struct {
	// MaxConcurrent caps deliveries running at once across recipients.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// MaxAttempts is the retry bound used when a strategy plan names none.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// RetryDelay is the linear backoff step: attempt n waits (n-1)*RetryDelay.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`

	// DeliveryTimeout bounds one backend call when a plan names none.
	DeliveryTimeout time.Duration `json:"delivery_timeout" yaml:"delivery_timeout"`

	// DispatchRate limits backend calls per second. Zero disables limiting.
	DispatchRate  float64 `json:"dispatch_rate" yaml:"dispatch_rate"`
	DispatchBurst int     `json:"dispatch_burst" yaml:"dispatch_burst"`

	// SerializeBackend takes a process-wide lock around every backend call,
	// for backends that drive a single physical resource.
	SerializeBackend bool `json:"serialize_backend" yaml:"serialize_backend"`

	// RetainTerminal bounds how many finished entries stay queryable.
	RetainTerminal int `json:"retain_terminal" yaml:"retain_terminal"`

	// Observer names the registered observers to emit events to, comma
	// separated ("noop", "slog", "prometheus").
	Observer string `json:"observer" yaml:"observer"`
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxConcurrent:   4,
		MaxAttempts:     3,
		RetryDelay:      time.Second,
		DeliveryTimeout: 30 * time.Second,
		DispatchRate:    0,
		DispatchBurst:   1,
		RetainTerminal:  1024,
		Observer:        "slog",
	}
}

func (c *QueueConfig) Merge(source *QueueConfig) {
	if source.MaxConcurrent > 0 {
		c.MaxConcurrent = source.MaxConcurrent
	}

	if source.MaxAttempts > 0 {
		c.MaxAttempts = source.MaxAttempts
	}

	if source.RetryDelay > 0 {
		c.RetryDelay = source.RetryDelay
	}

	if source.DeliveryTimeout > 0 {
		c.DeliveryTimeout = source.DeliveryTimeout
	}

	if source.DispatchRate > 0 {
		c.DispatchRate = source.DispatchRate
	}

	if source.DispatchBurst > 0 {
		c.DispatchBurst = source.DispatchBurst
	}

	if source.SerializeBackend {
		c.SerializeBackend = true
	}

	if source.RetainTerminal > 0 {
		c.RetainTerminal = source.RetainTerminal
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}
}
