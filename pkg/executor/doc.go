/*
Package executor stops tasks on a node, escalating from a cooperative request
to a forceful kill of the task's process tree.

Each call to Escalator.Kill is an independent state machine:

	Idle ──► Signaling ──ok──────────────────────────────► Done (signaled)
	             │
	             └─ error / timeout ─► Escalating ──ok────► Done (tree_killed)
	                                       │
	                                       └─ error ──────► Failed

Signaling posts the payload to the task's stop endpoint through a Signaler and
is bounded by the kill escalation delay. HTTPSignaler runs requests on a single
worker goroutine, so at most one stop request is in flight at a time and each
request is bounded by its own timeout.

Escalating runs the kill-tree procedure through a TreeKiller. ScriptTreeKiller
executes the staged script with the task's working directory as its argument.
A zero delay skips Signaling and goes straight to the kill-tree.

StageKillTree copies or downloads the procedure into the task root at startup.
*/
package executor
