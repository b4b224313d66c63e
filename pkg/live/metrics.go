package live

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metrics for the live voice core.
type Metrics struct {
	registry *prometheus.Registry

	SessionsTotal   *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	AudioBytesTotal *prometheus.CounterVec
	Interruptions   prometheus.Counter
}

// NewMetrics creates and registers the live metrics under the given
// namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "hikmah"
	}

	registry := prometheus.NewRegistry()

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_total",
			Help:      "Total number of live sessions by outcome",
		},
		[]string{"status"},
	)

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of active live sessions",
		},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_audio_bytes_total",
			Help:      "Total audio bytes moved in live sessions",
		},
		[]string{"direction"},
	)

	interruptions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_interruptions_total",
			Help:      "Total server-signaled barge-in interruptions",
		},
	)

	registry.MustRegister(sessionsTotal, sessionsActive, audioBytesTotal, interruptions)

	return &Metrics{
		registry:        registry,
		SessionsTotal:   sessionsTotal,
		SessionsActive:  sessionsActive,
		AudioBytesTotal: audioBytesTotal,
		Interruptions:   interruptions,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for scraping.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
