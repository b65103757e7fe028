/*
Package log provides structured logging for rookery using zerolog.

A single global Logger is configured once at process start through Init and
then specialised per component:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("reconciler")
	logger.Info().Str("loop", "explicit").Int("tasks", n).Msg("Reconciliation sent")

Console output is human readable and is the default for interactive use; JSON
output is intended for log shippers. The level is global (zerolog.SetGlobalLevel),
so child loggers created before Init still honour the configured level.

Fields used across the codebase:

	component   owning subsystem (reconciler, periodic, executor, storage, driver)
	job         periodic job name (explicit, implicit)
	task_id     task identifier
	attempt_id  kill escalation attempt
*/
package log
