/*
Package types defines the core data structures shared by the rookery scheduler
and executor.

# Task lifecycle

	pending ─► assigned ─► starting ─► running ─► killing
	                                      │           │
	                                      ▼           ▼
	                              finished/failed   killed
	                                   lost (any non-terminal state)

States on the top row are active (TaskState.IsActive); finished, failed, killed
and lost are terminal. Only active tasks take part in explicit reconciliation.

# Records

TaskRecord is owned by the task store. The reconciler reads it and never writes
it back. TaskStatus is the reduced form sent to the cluster manager, and
KillCommand is built by the caller for every kill decision and consumed once by
the executor's escalator.
*/
package types
