// Package metrics collects Prometheus telemetry for the engine lifecycle:
// resource transitions, script runs and async in-flight work.
//
// A nil *Collector is valid and records nothing, so callers never need to
// guard calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeScript   = "script_error"
	OutcomeMemory   = "memory_error"
	OutcomeUnknown  = "unknown_error"
	OutcomeContract = "contract_violation"
)

// Collector holds the engine's Prometheus collectors on a private registry.
type Collector struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	live        *prometheus.GaugeVec
	runs        *prometheus.CounterVec
	runLatency  *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	rejected    prometheus.Counter
}

// NewCollector creates a collector. An empty namespace defaults to "v8cffi".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "v8cffi"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions per resource tier",
		},
		[]string{"resource", "transition", "result"},
	)

	c.live = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "live",
			Help:      "Resources currently alive per tier",
		},
		[]string{"resource"},
	)

	c.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "script",
			Name:      "runs_total",
			Help:      "Script runs by outcome",
		},
		[]string{"outcome"},
	)

	c.runLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "script",
			Name:      "run_duration_seconds",
			Help:      "Time spent in a single script run",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100us to ~3s
		},
		[]string{"outcome"},
	)

	c.inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "async",
			Name:      "in_flight",
			Help:      "Async runs currently executing",
		},
	)

	c.rejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "async",
			Name:      "rejected_total",
			Help:      "Async runs failed because the scope was no longer alive",
		},
	)

	c.registry.MustRegister(
		c.transitions,
		c.live,
		c.runs,
		c.runLatency,
		c.inFlight,
		c.rejected,
	)
	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordSetUp records a set-up attempt for a resource tier.
func (c *Collector) RecordSetUp(resource string, err error) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(resource, "set_up", result(err)).Inc()
	if err == nil {
		c.live.WithLabelValues(resource).Inc()
	}
}

// RecordTearDown records a tear-down attempt for a resource tier.
func (c *Collector) RecordTearDown(resource string, err error) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(resource, "tear_down", result(err)).Inc()
	if err == nil {
		c.live.WithLabelValues(resource).Dec()
	}
}

// RecordRun records one script run.
func (c *Collector) RecordRun(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(outcome).Inc()
	c.runLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

// SetInFlight records the async in-flight count.
func (c *Collector) SetInFlight(n int) {
	if c == nil {
		return
	}
	c.inFlight.Set(float64(n))
}

// RecordRejected counts an async run refused because its scope was gone.
func (c *Collector) RecordRejected() {
	if c == nil {
		return
	}
	c.rejected.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
