package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task store metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rookery_tasks_total",
			Help: "Total number of task records by state",
		},
		[]string{"state"},
	)

	// Periodic scheduler metrics
	PeriodicRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rookery_periodic_runs_total",
			Help: "Total number of periodic job firings by job and result",
		},
		[]string{"job", "result"},
	)

	PeriodicLateness = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rookery_periodic_lateness_seconds",
			Help:    "Delay between a firing's scheduled time and its actual start",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// Reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rookery_reconciliation_duration_seconds",
			Help:    "Time taken by one reconciliation run in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ReconciliationTasksSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rookery_reconciliation_tasks_sent_total",
			Help: "Total number of task statuses sent to the cluster manager",
		},
		[]string{"kind"},
	)

	ReconciliationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rookery_reconciliation_failures_total",
			Help: "Total number of failed reconciliation runs by kind and stage",
		},
		[]string{"kind", "stage"},
	)

	// Executor metrics
	SignalCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rookery_signal_calls_total",
			Help: "Total number of cooperative stop signals by result",
		},
		[]string{"result"},
	)

	SignalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rookery_signal_duration_seconds",
			Help:    "Duration of cooperative stop signal calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	KillAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rookery_kill_attempts_total",
			Help: "Total number of kill escalations by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(PeriodicRunsTotal)
	prometheus.MustRegister(PeriodicLateness)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationTasksSent)
	prometheus.MustRegister(ReconciliationFailures)
	prometheus.MustRegister(SignalCallsTotal)
	prometheus.MustRegister(SignalDuration)
	prometheus.MustRegister(KillAttemptsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
