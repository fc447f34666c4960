package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imaged"

// Collector records ingestion and retrieval outcomes in its own registry.
type Collector struct {
	registry *prometheus.Registry

	ingestions     *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	retrievals     *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Total number of uploaded files by outcome",
		}, []string{"outcome"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent validating, transcoding and storing one file",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of artifact lookups by kind and outcome",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(
		c.ingestions,
		c.ingestDuration,
		c.retrievals,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveIngestion(outcome string, elapsed time.Duration) {
	c.ingestions.WithLabelValues(outcome).Inc()
	c.ingestDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRetrieval(kind, outcome string) {
	c.retrievals.WithLabelValues(kind, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
