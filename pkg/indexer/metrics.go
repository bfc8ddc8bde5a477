package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments updated by the Orchestrator.
type Metrics struct {
	scansTotal      *prometheus.CounterVec
	scanDuration    *prometheus.HistogramVec
	filesProcessed  *prometheus.CounterVec
	cacheHits       prometheus.Counter
	componentsTotal prometheus.Gauge
	persistFailures prometheus.Counter
	engineState     *prometheus.GaugeVec
}

// NewMetrics registers the scan instruments on reg. A nil reg creates a
// private registry, which keeps tests and multiple engines independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		scansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "compreg",
			Name:      "scans_total",
			Help:      "Total number of scans by kind and result",
		}, []string{"kind", "result"}),

		scanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "compreg",
			Name:      "scan_duration_seconds",
			Help:      "Scan duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		filesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "compreg",
			Name:      "files_processed_total",
			Help:      "Files processed by outcome",
		}, []string{"outcome"}),

		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "compreg",
			Name:      "cache_hits_total",
			Help:      "Files whose records were reused from the cache",
		}),

		componentsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "compreg",
			Name:      "components",
			Help:      "Components in the live registry",
		}),

		persistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "compreg",
			Name:      "persist_failures_total",
			Help:      "Failed registry or cache writes",
		}),

		engineState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "compreg",
			Name:      "engine_state",
			Help:      "1 for the current engine state, 0 otherwise",
		}, []string{"state"}),
	}
}

func (m *Metrics) observeScan(kind string, summary ScanSummary, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.scansTotal.WithLabelValues(kind, result).Inc()
	m.scanDuration.WithLabelValues(kind).Observe(summary.Duration.Seconds())
	m.filesProcessed.WithLabelValues("success").Add(float64(summary.SuccessfulFiles))
	m.filesProcessed.WithLabelValues("failed").Add(float64(summary.FailedFiles))
	m.cacheHits.Add(float64(summary.CacheHits))
	m.componentsTotal.Set(float64(summary.Components))
}

func (m *Metrics) setState(state State) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.engineState.WithLabelValues(s.String()).Set(v)
	}
}
