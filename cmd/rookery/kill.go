package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cuemby/rookery/pkg/executor"
	"github.com/cuemby/rookery/pkg/log"
	"github.com/cuemby/rookery/pkg/storage"
	"github.com/cuemby/rookery/pkg/types"
)

var killCmd = &cobra.Command{
	Use:   "kill --task ID",
	Short: "Stop a task, escalating to a process tree kill",
	Long: `Stop a task on this node. A cooperative stop request is posted to the
task's endpoint first; if it is not acknowledged within the kill escalation
delay, the kill-tree procedure is run against the task's working directory.

The endpoint and working directory default to the task's record in the
store and to <task_root>/<task ID>.

Examples:
  # Stop a task recorded in the store
  rookery kill --task web-1

  # Stop a task directly
  rookery kill --task web-1 --endpoint http://node-a:8081/quitquitquit --workdir /var/run/tasks/web-1`,
	RunE: runKill,
}

func init() {
	killCmd.Flags().String("task", "", "Task ID (required)")
	killCmd.Flags().String("endpoint", "", "Cooperative stop endpoint")
	killCmd.Flags().String("workdir", "", "Task working directory")
	killCmd.Flags().String("kill-tree", "", "Kill-tree procedure path; staged from executor.kill_tree_source when empty")
	killCmd.Flags().String("payload", "", "Body of the stop request")
	killCmd.Flags().Duration("escalation", 0, "Kill escalation delay (overrides executor.kill_escalation)")
	_ = killCmd.MarkFlagRequired("task")

	_ = v.BindPFlag("executor.kill_escalation", killCmd.Flags().Lookup("escalation"))
}

func runKill(cmd *cobra.Command, args []string) error {
	taskID, _ := cmd.Flags().GetString("task")
	endpoint, _ := cmd.Flags().GetString("endpoint")
	workDir, _ := cmd.Flags().GetString("workdir")
	killTree, _ := cmd.Flags().GetString("kill-tree")
	payload, _ := cmd.Flags().GetString("payload")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := storage.Open(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to open task store: %v", err)
	}
	defer store.Close()

	task, err := store.GetTask(ctx, taskID)
	switch {
	case err == nil:
		if endpoint == "" && task.Assignment != nil {
			endpoint = task.Assignment.Endpoint
		}
	case errors.Is(err, storage.ErrTaskNotFound):
		task = nil
	default:
		return fmt.Errorf("failed to get task: %v", err)
	}

	if workDir == "" {
		workDir = filepath.Join(cfg.Executor.TaskRoot, taskID)
	}

	killTree = resolveKillTree(ctx, killTree, cfg.Executor.KillTreeSource, cfg.Executor.TaskRoot)

	signaler := executor.NewHTTPSignaler(cfg.Executor.SignalTimeout)
	defer signaler.Close()

	escalator, err := executor.NewEscalator(signaler, executor.NewScriptTreeKiller(), cfg.Executor.KillEscalation,
		executor.WithSignalPayload(payload))
	if err != nil {
		return err
	}

	res := escalator.Kill(ctx, types.KillCommand{
		TaskID:       taskID,
		Endpoint:     endpoint,
		KillTreePath: killTree,
		WorkDir:      workDir,
	})

	switch res.Outcome {
	case executor.OutcomeSignaled:
		fmt.Printf("%s Task %s stopped cooperatively in %s\n", color.New(color.FgGreen).Sprint("✓"), taskID, res.Duration)
		for _, line := range res.Response {
			fmt.Printf("    %s\n", line)
		}
	case executor.OutcomeTreeKilled:
		fmt.Printf("%s Task %s process tree killed in %s\n", color.New(color.FgYellow).Sprint("!"), taskID, res.Duration)
		fmt.Printf("    stop request: %v\n", res.SignalErr)
	case executor.OutcomeFailed:
		fmt.Printf("%s Task %s could not be killed\n", color.New(color.FgRed).Sprint("✗"), taskID)
		fmt.Printf("    stop request: %v\n", res.SignalErr)
		if res.KillErr.Output != "" {
			fmt.Printf("    kill-tree output: %s\n", res.KillErr.Output)
		}
		return res.Err()
	}

	if task != nil && task.State.IsActive() {
		task.State = types.TaskStateKilled
		if err := store.UpdateTask(ctx, task); err != nil {
			logger := log.WithTaskID(taskID)
			logger.Warn().Err(err).Msg("Task killed but its record was not updated")
		}
	}
	return nil
}

// resolveKillTree returns the procedure to escalate to. A staging failure
// only leaves the path empty, so the stop request is still sent and the
// kill fails only if escalation is needed.
func resolveKillTree(ctx context.Context, override, source, taskRoot string) string {
	if override != "" {
		return override
	}
	path, err := executor.StageKillTree(ctx, source, taskRoot)
	if err != nil {
		logger := log.WithComponent("kill")
		logger.Warn().Err(err).Msg("Kill-tree procedure not staged, escalation will fail")
		return ""
	}
	return path
}
