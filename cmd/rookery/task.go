package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/rookery/pkg/storage"
	"github.com/cuemby/rookery/pkg/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and seed the task store",
}

var taskAddCmd = &cobra.Command{
	Use:   "add [ID]",
	Short: "Add a task record",
	Long: `Add a task record to the store. A random ID is generated when none
is given.

Examples:
  # Add a running task with a stop endpoint
  rookery task add web-1 --state running --host node-a --endpoint http://node-a:8081/quitquitquit`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stateName, _ := cmd.Flags().GetString("state")
		host, _ := cmd.Flags().GetString("host")
		nodeID, _ := cmd.Flags().GetString("node")
		endpoint, _ := cmd.Flags().GetString("endpoint")

		state := types.TaskState(stateName)
		if !state.IsValid() {
			return fmt.Errorf("unknown task state %q", stateName)
		}

		id := uuid.NewString()
		if len(args) == 1 {
			id = args[0]
		}

		task := &types.TaskRecord{ID: id, State: state}
		if host != "" || nodeID != "" || endpoint != "" {
			task.Assignment = &types.Assignment{NodeID: nodeID, Host: host, Endpoint: endpoint}
		}

		return withStore(func(ctx context.Context, store storage.Store) error {
			if err := store.CreateTask(ctx, task); err != nil {
				return fmt.Errorf("failed to add task: %v", err)
			}
			fmt.Printf("%s Task %s added (%s)\n", color.New(color.FgGreen).Sprint("✓"), task.ID, stateLabel(task.State))
			return nil
		})
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List task records",
	RunE: func(cmd *cobra.Command, args []string) error {
		activeOnly, _ := cmd.Flags().GetBool("active")

		return withStore(func(ctx context.Context, store storage.Store) error {
			var (
				tasks []*types.TaskRecord
				err   error
			)
			if activeOnly {
				tasks, err = store.FetchActiveTasks(ctx)
			} else {
				tasks, err = store.ListTasks(ctx)
			}
			if err != nil {
				return fmt.Errorf("failed to list tasks: %v", err)
			}

			if len(tasks) == 0 {
				fmt.Println("No tasks found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATE\tHOST\tENDPOINT\tUPDATED")
			for _, task := range tasks {
				host, endpoint := "-", "-"
				if a := task.Assignment; a != nil {
					host, endpoint = orDash(a.Host), orDash(a.Endpoint)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					task.ID, stateLabel(task.State), host, endpoint,
					task.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		})
	},
}

var taskSetStateCmd = &cobra.Command{
	Use:   "set-state ID STATE",
	Short: "Change the recorded state of a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		state := types.TaskState(strings.ToLower(args[1]))
		if !state.IsValid() {
			return fmt.Errorf("unknown task state %q", args[1])
		}

		return withStore(func(ctx context.Context, store storage.Store) error {
			task, err := store.GetTask(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get task: %v", err)
			}
			previous := task.State
			task.State = state
			if err := store.UpdateTask(ctx, task); err != nil {
				return fmt.Errorf("failed to update task: %v", err)
			}
			fmt.Printf("%s Task %s: %s → %s\n", color.New(color.FgGreen).Sprint("✓"), task.ID, stateLabel(previous), stateLabel(state))
			return nil
		})
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Remove a task record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store storage.Store) error {
			if err := store.DeleteTask(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to remove task: %v", err)
			}
			fmt.Printf("%s Task %s removed\n", color.New(color.FgGreen).Sprint("✓"), args[0])
			return nil
		})
	},
}

func init() {
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskSetStateCmd)
	taskCmd.AddCommand(taskRemoveCmd)

	taskAddCmd.Flags().String("state", string(types.TaskStatePending), "Initial task state")
	taskAddCmd.Flags().String("host", "", "Host the task is assigned to")
	taskAddCmd.Flags().String("node", "", "Node ID the task is assigned to")
	taskAddCmd.Flags().String("endpoint", "", "Cooperative stop endpoint of the task")

	taskListCmd.Flags().Bool("active", false, "Only list tasks in a non-terminal state")
}

// withStore opens the configured store for the duration of fn
func withStore(fn func(ctx context.Context, store storage.Store) error) error {
	store, err := storage.Open(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to open task store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, store)
}

func stateLabel(state types.TaskState) string {
	switch {
	case state == types.TaskStateRunning:
		return color.New(color.FgGreen).Sprint(state)
	case state.IsActive():
		return color.New(color.FgYellow).Sprint(state)
	case state == types.TaskStateFinished:
		return color.New(color.FgBlue).Sprint(state)
	default:
		return color.New(color.FgRed).Sprint(state)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
