// Package metrics exposes server counters to prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one server. Each server registers into its
// own registry so several can run in one process.
type Metrics struct {
	Registry *prometheus.Registry

	Requests          *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ReplayMisses      *prometheus.CounterVec
	ProtocolErrors    prometheus.Counter
	ForwardingErrors  *prometheus.CounterVec
	FileEdits         prometheus.Counter
	CorrelationMisses prometheus.Counter
	PendingRecords    prometheus.Gauge
}

// New creates and registers the server collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "replaymock_requests_total",
			Help: "Requests processed, by traffic kind and whether they were replayed",
		}, []string{"kind", "source"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "replaymock_request_duration_seconds",
			Help:    "Time from receipt to completion of a top-level request",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"kind"}),
		ReplayMisses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "replaymock_replay_misses_total",
			Help: "Replayed requests with no unread matching request in the trace",
		}, []string{"kind"}),
		ProtocolErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "replaymock_protocol_errors_total",
			Help: "Requests whose text matched no known traffic kind",
		}),
		ForwardingErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "replaymock_forwarding_errors_total",
			Help: "Live calls to a real destination that failed",
		}, []string{"kind"}),
		FileEdits: f.NewCounter(prometheus.CounterOpts{
			Name: "replaymock_file_edits_total",
			Help: "File edits detected while recording or restored while replaying",
		}),
		CorrelationMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "replaymock_correlation_misses_total",
			Help: "Replayed file edits dropped because no live path matched",
		}),
		PendingRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "replaymock_pending_records",
			Help: "Requests whose recorded text is buffered waiting for earlier requests",
		}),
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
