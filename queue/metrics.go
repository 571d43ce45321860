package queue

import "sync/atomic"

type MetricsSnapshot struct {
	Enqueued  int64 `json:"enqueued"`
	Blocked   int64 `json:"blocked"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Attempts  int64 `json:"attempts"`
	Retries   int64 `json:"retries"`
	InFlight  int64 `json:"in_flight"`
	Pending   int64 `json:"pending"`
}

type Metrics struct {
	enqueued  atomic.Int64
	blocked   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	attempts  atomic.Int64
	retries   atomic.Int64
	inFlight  atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordEnqueued()  { m.enqueued.Add(1) }
func (m *Metrics) RecordBlocked()   { m.blocked.Add(1) }
func (m *Metrics) RecordDelivered() { m.delivered.Add(1) }
func (m *Metrics) RecordFailed()    { m.failed.Add(1) }
func (m *Metrics) RecordRetry()     { m.retries.Add(1) }

// BeginDelivery counts an attempt and returns the new in-flight count.
func (m *Metrics) BeginDelivery() int64 {
	m.attempts.Add(1)
	return m.inFlight.Add(1)
}

// EndDelivery returns the in-flight count after the delivery finished.
func (m *Metrics) EndDelivery() int64 {
	return m.inFlight.Add(-1)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Enqueued:  m.enqueued.Load(),
		Blocked:   m.blocked.Load(),
		Delivered: m.delivered.Load(),
		Failed:    m.failed.Load(),
		Attempts:  m.attempts.Load(),
		Retries:   m.retries.Load(),
		InFlight:  m.inFlight.Load(),
	}
}
