package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus instruments the services publish.
// Everything here is observational; none of it feeds back into
// processing decisions.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	BatchDuration   prometheus.Histogram
	TextsProcessed  prometheus.Counter
	MemoryRSSBytes  prometheus.Gauge
}

func New(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, registry)

	wrapped.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: registry,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Requests handled, by endpoint and outcome status.",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "End-to-end request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_embedding_batch_duration_seconds",
				Help:    "Latency of a single encoder batch invocation.",
				Buckets: prometheus.DefBuckets,
			},
		),
		TextsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_embedding_texts_total",
				Help: "Texts embedded since startup.",
			},
		),
		MemoryRSSBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_memory_rss_bytes",
				Help: "Resident memory as sampled at the last request boundary.",
			},
		),
	}

	wrapped.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.BatchDuration,
		m.TextsProcessed,
		m.MemoryRSSBytes,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
