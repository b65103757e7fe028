package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cuemby/rookery/pkg/config"
	"github.com/cuemby/rookery/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	v   = viper.New()
	cfg *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rookery",
	Short: "Rookery - task reconciliation and kill escalation for a cluster scheduler",
	Long: `Rookery keeps a scheduler's view of its tasks converging with the
cluster manager by periodically reconciling them, and stops tasks on a
node by escalating from a cooperative stop request to killing the
task's process tree.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Rookery version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Log as JSON instead of console output")
	flags.String("data-dir", "./rookery-data", "Directory holding the task store")
	flags.String("storage", "bolt", "Task store backend (bolt or sqlite)")

	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.json", flags.Lookup("log-json"))
	_ = v.BindPFlag("storage.data_dir", flags.Lookup("data-dir"))
	_ = v.BindPFlag("storage.driver", flags.Lookup("storage"))

	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(configCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stderr,
	})
	return nil
}
