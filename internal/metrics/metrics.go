package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes console metrics and the handler that serves them.
type Metrics interface {
	HTTPHandler() http.Handler

	// ObserveProbe records one reachability check of backend.
	ObserveProbe(backend string, ok bool, duration time.Duration)

	// RecordEvent counts an event written to a provider's event log.
	RecordEvent(provider, eventType string)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (m *NoopMetrics) ObserveProbe(string, bool, time.Duration) {}

func (m *NoopMetrics) RecordEvent(string, string) {}

// PrometheusMetrics exports probe and event metrics.
type PrometheusMetrics struct {
	gatherer prometheus.Gatherer

	backendUp     *prometheus.GaugeVec
	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	events        *prometheus.CounterVec
}

const namespace = "llm_console"

// NewPrometheusMetrics registers the console collectors on reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func NewPrometheusMetrics(reg *prometheus.Registry) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &PrometheusMetrics{
		gatherer: reg,
		backendUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_up",
			Help:      "Result of the last reachability probe (1 reachable, 0 not).",
		}, []string{"backend"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Reachability probes by backend and result.",
		}, []string{"backend", "result"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Latency of reachability probes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_events_total",
			Help:      "Events recorded in provider event logs.",
		}, []string{"provider", "type"}),
	}

	collectors := []prometheus.Collector{m.backendUp, m.probes, m.probeDuration, m.events}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register console metric: %w", err)
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) ObserveProbe(backend string, ok bool, duration time.Duration) {
	result, up := "failure", 0.0
	if ok {
		result, up = "success", 1.0
	}
	m.backendUp.WithLabelValues(backend).Set(up)
	m.probes.WithLabelValues(backend, result).Inc()
	m.probeDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordEvent(provider, eventType string) {
	m.events.WithLabelValues(provider, eventType).Inc()
}
