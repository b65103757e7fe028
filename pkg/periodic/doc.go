/*
Package periodic runs background jobs at a fixed rate.

Each job registered with ScheduleAtFixedRate gets its own goroutine, so a job
that blocks only delays its own later firings:

	registration
	     │
	     ├── initialDelay ──► fire 0 ── period ──► fire 1 ── period ──► fire 2 ...
	     │
	     └── due times are computed from the registration instant, never from
	         the completion of the previous run

If a run takes longer than one period, the firings that fell due while it was
running execute immediately one after another until the job is back on
schedule. Errors returned by a job and panics inside it are logged and counted
(rookery_periodic_runs_total) and never stop the job.

Stop only prevents new firings; there is no drain of runs in progress.
*/
package periodic
