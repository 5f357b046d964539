package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollingCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_polling_cycles_total",
			Help: "Total number of polling cycles run",
		},
		[]string{"result"}, // result: ok, failed
	)

	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_messages_processed_total",
			Help: "Total number of messages processed by the triage pipeline",
		},
		[]string{"outcome"}, // outcome: persisted_inquiry, persisted_other, duplicate, failed
	)

	AccountFetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_account_fetch_failures_total",
			Help: "Total number of per-account mailbox fetch failures",
		},
	)

	ClassifierCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_classifier_call_latency_ms",
			Help:    "Classification service call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"status"},
	)

	DBSlowQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Total number of queries exceeding the slow-query threshold",
		},
	)
)

func RecordCycle(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	PollingCycles.WithLabelValues(result).Inc()
}

func RecordMessage(outcome string) {
	MessagesProcessed.WithLabelValues(outcome).Inc()
}

func RecordClassifierLatency(status string, duration time.Duration) {
	ClassifierCallLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncrementSlowQuery(duration time.Duration) {
	DBSlowQueries.Inc()
}
