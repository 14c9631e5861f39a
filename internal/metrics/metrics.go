package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics for one process. Each Collector owns
// its registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// History store
	HistoryOps      *prometheus.CounterVec
	HistoryDuration *prometheus.HistogramVec

	// Model gateway
	GatewayRequests *prometheus.CounterVec

	// Chat
	ActiveSessions prometheus.Gauge
	Turns          *prometheus.CounterVec
}

// NewCollector creates and registers all metrics under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HistoryOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_operations_total",
				Help:      "Total number of history store operations",
			},
			[]string{"operation", "status"},
		),
		HistoryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "history_operation_duration_seconds",
				Help:      "History store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		GatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Total number of model gateway requests",
			},
			[]string{"provider", "status"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of live chat sessions",
			},
		),
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_turns_total",
				Help:      "Total number of answered chat turns",
			},
			[]string{"source", "status"},
		),
	}

	registry.MustRegister(
		c.HistoryOps,
		c.HistoryDuration,
		c.GatewayRequests,
		c.ActiveSessions,
		c.Turns,
	)

	return c
}

// Handler serves the collector in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Status maps an error to a metric label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
