package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver turns events into Prometheus metrics:
//   - relay_events_total{type,level} counts every event
//   - relay_delivery_latency_seconds{route} observes Data[KeyLatencyMS]
//   - relay_deliveries_in_flight tracks Data[KeyInFlight]
type PrometheusObserver struct {
	events   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewPrometheusObserver creates the relay collectors and registers them with
// reg. Registration conflicts are returned as errors.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Name:      "events_total",
				Help:      "Total number of observability events by type",
			},
			[]string{"type", "level"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "relay",
				Subsystem: "delivery",
				Name:      "latency_seconds",
				Help:      "Backend delivery latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "relay",
				Subsystem: "deliveries",
				Name:      "in_flight",
				Help:      "Number of deliveries currently executing against the backend",
			},
		),
	}

	for _, c := range []prometheus.Collector{o.events, o.latency, o.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register relay collector: %w", err)
		}
	}

	return o, nil
}

func (o *PrometheusObserver) OnEvent(_ context.Context, event Event) {
	o.events.WithLabelValues(string(event.Type), event.Level.String()).Inc()

	if ms, ok := number(event.Data[KeyLatencyMS]); ok {
		route, _ := event.Data[KeyRoute].(string)
		if route == "" {
			route = "unknown"
		}
		o.latency.WithLabelValues(route).Observe(ms / float64(time.Second/time.Millisecond))
	}

	if n, ok := number(event.Data[KeyInFlight]); ok {
		o.inFlight.Set(n)
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case time.Duration:
		return float64(n) / float64(time.Millisecond), true
	default:
		return 0, false
	}
}
