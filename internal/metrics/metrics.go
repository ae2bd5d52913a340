package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	matcherCalls   *prometheus.CounterVec
	matcherRetries *prometheus.CounterVec
	edgesWritten   prometheus.Counter
	skipped        *prometheus.CounterVec
	pairDuration   prometheus.Histogram
	pairFailures   prometheus.Counter
	imported       *prometheus.CounterVec
	edgesCleared   prometheus.Counter
	graphSyncs     *prometheus.CounterVec
	populations    *prometheus.CounterVec
	httpRequests   *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		matcherCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crosswalk",
			Name:      "matcher_calls_total",
			Help:      "Semantic matcher invocations by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		matcherRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crosswalk",
			Name:      "matcher_retries_total",
			Help:      "Retried matcher provider calls.",
		}, []string{"strategy"}),
		edgesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crosswalk",
			Name:      "edge_pairs_written_total",
			Help:      "Accepted mappings written as forward and reverse edge.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crosswalk",
			Name:      "controls_skipped_total",
			Help:      "Source controls that produced no edge, by reason.",
		}, []string{"reason"}),
		pairDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crosswalk",
			Name:      "pair_duration_seconds",
			Help:      "Wall time of mapping one ordered product pair.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		pairFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crosswalk",
			Name:      "pair_failures_total",
			Help:      "Product pairs aborted by an error.",
		}),
		imported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crosswalk",
			Name:      "controls_imported_total",
			Help:      "Questionnaire items processed by the importer, by outcome.",
		}, []string{"outcome"}),
		edgesCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crosswalk",
			Name:      "edges_cleared_total",
			Help:      "Edges deleted by remapping.",
		}),
		graphSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crosswalk",
			Name:      "graph_syncs_total",
			Help:      "Graph projection runs by outcome.",
		}, []string{"outcome"}),
		populations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crosswalk",
			Name:      "catalog_populations_total",
			Help:      "Catalog population runs by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crosswalk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.matcherCalls, m.matcherRetries, m.edgesWritten, m.skipped,
		m.pairDuration, m.pairFailures, m.imported, m.edgesCleared,
		m.graphSyncs, m.populations, m.httpRequests,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MatcherCall(strategy, outcome string) {
	if m == nil {
		return
	}
	m.matcherCalls.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) MatcherRetry(strategy string) {
	if m == nil {
		return
	}
	m.matcherRetries.WithLabelValues(strategy).Inc()
}

func (m *Metrics) EdgePairWritten() {
	if m == nil {
		return
	}
	m.edgesWritten.Inc()
}

func (m *Metrics) ControlSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) PairFinished(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.pairDuration.Observe(d.Seconds())
	if err != nil {
		m.pairFailures.Inc()
	}
}

func (m *Metrics) Imported(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.imported.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) EdgesCleared(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.edgesCleared.Add(float64(n))
}

func (m *Metrics) GraphSynced(err error) {
	if m == nil {
		return
	}
	m.graphSyncs.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) Populated(err error) {
	if m == nil {
		return
	}
	m.populations.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
