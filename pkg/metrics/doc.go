/*
Package metrics provides Prometheus metrics and health endpoints for rookery.

All metrics are package-level variables registered on the default registry in
init(), so any package can record them without plumbing a registry through:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, "explicit")

# Metrics

	rookery_tasks_total{state}                          gauge      Collector
	rookery_periodic_runs_total{job,result}             counter    periodic.Runner
	rookery_periodic_lateness_seconds{job}              histogram  periodic.Runner
	rookery_reconciliation_duration_seconds{kind}       histogram  reconciler
	rookery_reconciliation_tasks_sent_total{kind}       counter    reconciler
	rookery_reconciliation_failures_total{kind,stage}   counter    reconciler
	rookery_reconciliation_explicit_runs                counter    reconciler (RegisterMetrics)
	rookery_reconciliation_implicit_runs                counter    reconciler (RegisterMetrics)
	rookery_signal_calls_total{result}                  counter    executor.HTTPSignaler
	rookery_signal_duration_seconds                     histogram  executor.HTTPSignaler
	rookery_kill_attempts_total{outcome}                counter    executor.Escalator

# Health

Components report through UpdateComponent. /health is unhealthy when any
registered component is unhealthy; /ready additionally requires every entry in
CriticalComponents to be registered; /live always answers 200.
*/
package metrics
