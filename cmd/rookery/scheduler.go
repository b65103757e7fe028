package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cuemby/rookery/pkg/driver"
	"github.com/cuemby/rookery/pkg/events"
	"github.com/cuemby/rookery/pkg/log"
	"github.com/cuemby/rookery/pkg/metrics"
	"github.com/cuemby/rookery/pkg/periodic"
	"github.com/cuemby/rookery/pkg/reconciler"
	"github.com/cuemby/rookery/pkg/storage"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run task reconciliation against the cluster manager",
	Long: `Run the explicit and implicit reconciliation loops against the
cluster manager and serve metrics and health endpoints.

With --dry-run reconciliation requests are logged instead of sent.`,
	RunE: runScheduler,
}

func init() {
	schedulerCmd.Flags().Bool("dry-run", false, "Record reconcile requests instead of sending them")
	schedulerCmd.Flags().String("master", "http://127.0.0.1:5050", "Cluster manager URL")
	schedulerCmd.Flags().String("framework-id", "", "Framework ID registered with the cluster manager")
	schedulerCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for metrics and health endpoints")

	_ = v.BindPFlag("driver.master_url", schedulerCmd.Flags().Lookup("master"))
	_ = v.BindPFlag("driver.framework_id", schedulerCmd.Flags().Lookup("framework-id"))
	_ = v.BindPFlag("metrics_addr", schedulerCmd.Flags().Lookup("metrics-addr"))
}

func runScheduler(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	logger := log.WithComponent("scheduler")

	metrics.SetVersion(Version)

	store, err := storage.Open(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to open task store: %v", err)
	}
	defer store.Close()

	var drv driver.Driver
	if dryRun {
		drv = &driver.RecordingDriver{}
		logger.Warn().Msg("Dry run: reconcile requests will not be sent")
	} else {
		httpDriver, err := driver.NewHTTPDriver(driver.Config{
			MasterURL:   cfg.Driver.MasterURL,
			FrameworkID: cfg.Driver.FrameworkID,
			Timeout:     cfg.Driver.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create driver: %v", err)
		}
		drv = httpDriver
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	go logEvents(broker)

	runner := periodic.NewRunner()
	recon, err := reconciler.NewReconciler(cfg.Settings(), store, drv, runner, reconciler.WithEvents(broker))
	if err != nil {
		return fmt.Errorf("failed to create reconciler: %v", err)
	}
	if err := recon.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %v", err)
	}

	collector := metrics.NewCollector(store, 30*time.Second)
	collector.Start()

	if err := recon.Start(); err != nil {
		collector.Stop()
		runner.Stop()
		return fmt.Errorf("failed to start reconciler: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %v", err)
		}
	}()

	logger.Info().
		Str("master", cfg.Driver.MasterURL).
		Str("metrics_addr", cfg.MetricsAddr).
		Dur("explicit_interval", cfg.Reconciliation.ExplicitInterval).
		Dur("implicit_interval", cfg.Reconciliation.ImplicitInterval).
		Msg("Scheduler running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Shutting down")
	}

	runner.Stop()
	recon.Stop()
	collector.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Metrics server did not shut down cleanly")
	}

	logger.Info().
		Int64("explicit_runs", recon.ExplicitRuns()).
		Int64("implicit_runs", recon.ImplicitRuns()).
		Msg("Shutdown complete")
	return runErr
}

// logEvents writes broker events to the debug log
func logEvents(broker *events.Broker) {
	sub := broker.Subscribe()
	logger := log.WithComponent("events")
	for ev := range sub {
		logger.Debug().
			Str("type", string(ev.Type)).
			Str("task_id", ev.TaskID).
			Interface("metadata", ev.Metadata).
			Msg(ev.Message)
	}
}
