// Package metrics provides Prometheus metrics for paperfeed.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OracleCallsTotal counts language-model calls by operation and outcome.
	OracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperfeed",
			Name:      "oracle_calls_total",
			Help:      "Total number of language-model calls",
		},
		[]string{"operation", "outcome"},
	)

	// OracleCallDuration measures language-model call latency.
	OracleCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paperfeed",
			Name:      "oracle_call_duration_seconds",
			Help:      "Duration of language-model calls in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 250},
		},
		[]string{"operation"},
	)

	// PapersTotal counts papers leaving each pipeline stage.
	PapersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperfeed",
			Name:      "papers_total",
			Help:      "Total number of papers surviving each pipeline stage",
		},
		[]string{"stage"},
	)

	// RunsTotal counts pipeline runs by final status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperfeed",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"status"},
	)

	// HTTPRequestsTotal counts API requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperfeed",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served",
		},
		[]string{"method", "status"},
	)
)

// RecordOracleCall records one language-model call. outcome is "ok" or an
// error kind such as "timeout".
func RecordOracleCall(operation, outcome string, d time.Duration) {
	OracleCallsTotal.WithLabelValues(operation, outcome).Inc()
	OracleCallDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordPapers adds n papers to the given stage counter.
func RecordPapers(stage string, n int) {
	PapersTotal.WithLabelValues(stage).Add(float64(n))
}

// RecordRun records a finished pipeline run.
func RecordRun(status string) {
	RunsTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records a served API request.
func RecordHTTPRequest(method, status string) {
	HTTPRequestsTotal.WithLabelValues(method, status).Inc()
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
