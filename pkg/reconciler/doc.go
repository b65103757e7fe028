/*
Package reconciler keeps the cluster manager's view of task state converging
with the scheduler's own records.

Neither side can update the other atomically, and status updates can be lost
or delayed, so the scheduler periodically asks the cluster manager to resend
what it knows. Two independent loops do this, each registered as its own job
on a shared periodic.Scheduler:

	start
	  │
	  ├─ InitialDelay ─────────────► explicit ── ExplicitInterval ──► explicit ...
	  │                                 │
	  │                                 └─ FetchActiveTasks ─► ToStatus ─► ReconcileTasks(set)
	  │
	  └─ InitialDelay + ScheduleSpread ─► implicit ── ImplicitInterval ──► implicit ...
	                                        │
	                                        └─ ReconcileTasks(empty set)

# Explicit reconciliation

Every active task in the store is sent as a TaskStatus carrying the task ID and
PlaceholderState. The cluster manager answers asynchronously with updates for
tasks whose state differs from what it has. ToStatus is the only function that
knows about the placeholder.

# Implicit reconciliation

An empty set asks the cluster manager to send the latest state of every task
it knows for this framework, which catches tasks the scheduler has forgotten.

# Failure handling

A run that fails (QueryFailure from the store, ReconcileSendFailure from the
driver) is not retried. The error goes back to the scheduler, which logs it,
and the next firing is the retry. The loops may overlap in time and are never
serialised against each other. ScheduleSpread only keeps them from firing at
the same instant.

# Counters

ExplicitRuns and ImplicitRuns count successful runs for the lifetime of the
process. They are atomic and can be read from any goroutine; RegisterMetrics
exposes them as rookery_reconciliation_explicit_runs and
rookery_reconciliation_implicit_runs.
*/
package reconciler
