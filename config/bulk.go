package config

import "runtime"

// BulkConfig controls worker sizing for bulk coordination.
//
//   - MaxWorkers = 0: runtime.NumCPU() * 2, capped by WorkerCap
//   - MaxWorkers > 0: exact worker count
type BulkConfig struct {
	MaxWorkers int    `json:"max_workers" yaml:"max_workers"`
	WorkerCap  int    `json:"worker_cap" yaml:"worker_cap"`
	Observer   string `json:"observer" yaml:"observer"`
}

func DefaultBulkConfig() BulkConfig {
	return BulkConfig{
		MaxWorkers: 0,
		WorkerCap:  16,
		Observer:   "slog",
	}
}

func (c *BulkConfig) Merge(source *BulkConfig) {
	if source.MaxWorkers > 0 {
		c.MaxWorkers = source.MaxWorkers
	}

	if source.WorkerCap > 0 {
		c.WorkerCap = source.WorkerCap
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// Workers resolves the worker count for a batch of n messages. The result
// is never more than n and never less than one.
func (c BulkConfig) Workers(n int) int {
	workers := c.MaxWorkers
	if workers <= 0 {
		workers = min(runtime.NumCPU()*2, c.WorkerCap)
	}
	if n > 0 {
		workers = min(workers, n)
	}
	return max(workers, 1)
}
