package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_gate_decisions_total",
			Help: "Total number of safety gate decisions by verdict and reason.",
		},
		[]string{"verdict", "reason"},
	)
	modelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_model_requests_total",
			Help: "Total number of language model calls by status.",
		},
		[]string{"status"},
	)
	modelLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querygate_model_latency_seconds",
			Help:    "Language model round trip latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_query_executions_total",
			Help: "Total number of accepted queries executed by status.",
		},
		[]string{"status"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querygate_query_duration_seconds",
			Help:    "Database execution latency for accepted queries in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querygate_query_rows_returned",
			Help:    "Number of rows returned per executed query.",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)
	auditWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querygate_audit_write_failures_total",
			Help: "Total number of audit records that could not be written.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		gateDecisionsTotal,
		modelRequestsTotal,
		modelLatencySeconds,
		queryExecutionsTotal,
		queryDurationSeconds,
		queryRowsReturned,
		auditWriteFailuresTotal,
	)
}

func ObserveGateDecision(verdict, reason string) {
	if reason == "" {
		reason = "none"
	}
	gateDecisionsTotal.WithLabelValues(verdict, reason).Inc()
}

func ObserveModelCall(elapsed time.Duration, err error) {
	modelRequestsTotal.WithLabelValues(statusLabel(err)).Inc()
	modelLatencySeconds.Observe(elapsed.Seconds())
}

func ObserveQueryExecution(rows int, elapsed time.Duration, err error) {
	queryExecutionsTotal.WithLabelValues(statusLabel(err)).Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
	if err == nil {
		queryRowsReturned.Observe(float64(rows))
	}
}

func IncrementAuditWriteFailure() {
	auditWriteFailuresTotal.Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
