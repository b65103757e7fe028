package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/cuemby/rookery/pkg/driver"
	"github.com/cuemby/rookery/pkg/events"
	"github.com/cuemby/rookery/pkg/log"
	"github.com/cuemby/rookery/pkg/metrics"
	"github.com/cuemby/rookery/pkg/periodic"
	"github.com/cuemby/rookery/pkg/types"
)

const (
	ExplicitStatName = "reconciliation_explicit_runs"
	ImplicitStatName = "reconciliation_implicit_runs"

	explicitJob = "explicit"
	implicitJob = "implicit"
)

// PlaceholderState is the state attached to every explicitly reconciled task.
// The reconcile record requires a state, the cluster manager ignores it, and a
// non-terminal value cannot be mistaken for a termination notice.
const PlaceholderState = types.TaskStateRunning

// Settings controls reconciliation cadence
type Settings struct {
	InitialDelay     time.Duration
	ExplicitInterval time.Duration
	ImplicitInterval time.Duration
	ScheduleSpread   time.Duration
}

// Validate checks the cadence invariants
func (s Settings) Validate() error {
	var errs []error
	if s.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("initial delay must not be negative, got %v", s.InitialDelay))
	}
	if s.ScheduleSpread < 0 {
		errs = append(errs, fmt.Errorf("schedule spread must not be negative, got %v", s.ScheduleSpread))
	}
	if s.ExplicitInterval <= 0 {
		errs = append(errs, fmt.Errorf("explicit interval must be positive, got %v", s.ExplicitInterval))
	}
	if s.ImplicitInterval <= 0 {
		errs = append(errs, fmt.Errorf("implicit interval must be positive, got %v", s.ImplicitInterval))
	}
	if s.ImplicitInterval > 0 && s.ScheduleSpread >= s.ImplicitInterval {
		errs = append(errs, fmt.Errorf("schedule spread %v must be smaller than implicit interval %v",
			s.ScheduleSpread, s.ImplicitInterval))
	}
	return errors.Join(errs...)
}

// TaskSource returns the tasks the scheduler believes are active
type TaskSource interface {
	FetchActiveTasks(ctx context.Context) ([]*types.TaskRecord, error)
}

// QueryFailure wraps an error from the task store
type QueryFailure struct {
	Err error
}

func (e *QueryFailure) Error() string { return "failed to fetch active tasks: " + e.Err.Error() }
func (e *QueryFailure) Unwrap() error { return e.Err }

// ReconcileSendFailure wraps an error from the driver
type ReconcileSendFailure struct {
	Kind  string
	Tasks int
	Err   error
}

func (e *ReconcileSendFailure) Error() string {
	return fmt.Sprintf("failed to send %s reconciliation (%d tasks): %v", e.Kind, e.Tasks, e.Err)
}
func (e *ReconcileSendFailure) Unwrap() error { return e.Err }

// Option configures a TaskReconciler
type Option func(*TaskReconciler)

// WithRunTimeout bounds the store query and driver call of a single run
func WithRunTimeout(d time.Duration) Option {
	return func(r *TaskReconciler) { r.runTimeout = d }
}

// WithEvents publishes one event per run on broker
func WithEvents(broker *events.Broker) Option {
	return func(r *TaskReconciler) { r.events = broker }
}

// TaskReconciler periodically triggers explicit and implicit task
// reconciliation with the cluster manager
type TaskReconciler struct {
	settings   Settings
	store      TaskSource
	driver     driver.Driver
	scheduler  periodic.Scheduler
	runTimeout time.Duration
	events     *events.Broker
	logger     zerolog.Logger

	explicitRuns atomic.Int64
	implicitRuns atomic.Int64
}

// NewReconciler creates a new reconciler
func NewReconciler(settings Settings, store TaskSource, drv driver.Driver, sched periodic.Scheduler, opts ...Option) (*TaskReconciler, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reconciliation settings: %w", err)
	}
	if store == nil || drv == nil || sched == nil {
		return nil, errors.New("store, driver and scheduler are required")
	}

	r := &TaskReconciler{
		settings:   settings,
		store:      store,
		driver:     drv,
		scheduler:  sched,
		runTimeout: time.Minute,
		logger:     log.WithComponent("reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start schedules the explicit and implicit loops. It must be called once.
func (r *TaskReconciler) Start() error {
	if err := r.scheduler.ScheduleAtFixedRate(explicitJob,
		r.settings.InitialDelay,
		r.settings.ExplicitInterval,
		r.reconcileExplicit); err != nil {
		return fmt.Errorf("failed to schedule explicit reconciliation: %w", err)
	}

	if err := r.scheduler.ScheduleAtFixedRate(implicitJob,
		r.settings.InitialDelay+r.settings.ScheduleSpread,
		r.settings.ImplicitInterval,
		r.reconcileImplicit); err != nil {
		return fmt.Errorf("failed to schedule implicit reconciliation: %w", err)
	}

	metrics.UpdateComponent("reconciler", true, "scheduled")
	r.logger.Info().
		Dur("initial_delay", r.settings.InitialDelay).
		Dur("explicit_interval", r.settings.ExplicitInterval).
		Dur("implicit_interval", r.settings.ImplicitInterval).
		Dur("schedule_spread", r.settings.ScheduleSpread).
		Msg("Task reconciliation started")
	return nil
}

// Stop is a no-op: runs in flight are allowed to finish or be cut short by
// process exit. The owner of the scheduler stops further firings.
func (r *TaskReconciler) Stop() {
	r.logger.Info().
		Int64("explicit_runs", r.ExplicitRuns()).
		Int64("implicit_runs", r.ImplicitRuns()).
		Msg("Task reconciliation stopping")
}

// ExplicitRuns returns the number of successful explicit runs
func (r *TaskReconciler) ExplicitRuns() int64 {
	return r.explicitRuns.Load()
}

// ImplicitRuns returns the number of successful implicit runs
func (r *TaskReconciler) ImplicitRuns() int64 {
	return r.implicitRuns.Load()
}

// RegisterMetrics exposes the run counters on reg
func (r *TaskReconciler) RegisterMetrics(reg prometheus.Registerer) error {
	counters := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "rookery",
			Name:      ExplicitStatName,
			Help:      "Number of successful explicit reconciliation runs",
		}, func() float64 { return float64(r.ExplicitRuns()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "rookery",
			Name:      ImplicitStatName,
			Help:      "Number of successful implicit reconciliation runs",
		}, func() float64 { return float64(r.ImplicitRuns()) }),
	}
	for _, c := range counters {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ToStatus converts a task record into its reconcile record
func ToStatus(task *types.TaskRecord) types.TaskStatus {
	return types.TaskStatus{
		TaskID: task.ID,
		State:  PlaceholderState,
	}
}

// reconcileExplicit sends every active task so the cluster manager can
// report on the ones it disagrees about
func (r *TaskReconciler) reconcileExplicit(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, explicitJob)

	ctx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()

	tasks, err := r.store.FetchActiveTasks(ctx)
	if err != nil {
		return r.fail(explicitJob, "query", &QueryFailure{Err: err})
	}

	statuses := make([]types.TaskStatus, 0, len(tasks))
	for _, task := range tasks {
		statuses = append(statuses, ToStatus(task))
	}

	if err := r.driver.ReconcileTasks(ctx, statuses); err != nil {
		return r.fail(explicitJob, "send", &ReconcileSendFailure{Kind: explicitJob, Tasks: len(statuses), Err: err})
	}

	runs := r.explicitRuns.Add(1)
	r.succeed(explicitJob, events.EventReconcileExplicit, len(statuses), runs)
	return nil
}

// reconcileImplicit sends an empty set, asking the cluster manager for its
// full view of our tasks
func (r *TaskReconciler) reconcileImplicit(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, implicitJob)

	ctx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()

	if err := r.driver.ReconcileTasks(ctx, []types.TaskStatus{}); err != nil {
		return r.fail(implicitJob, "send", &ReconcileSendFailure{Kind: implicitJob, Err: err})
	}

	runs := r.implicitRuns.Add(1)
	r.succeed(implicitJob, events.EventReconcileImplicit, 0, runs)
	return nil
}

func (r *TaskReconciler) succeed(kind string, evType events.EventType, tasks int, runs int64) {
	metrics.ReconciliationTasksSent.WithLabelValues(kind).Add(float64(tasks))
	metrics.UpdateComponent("reconciler", true, "")

	r.logger.Debug().Str("loop", kind).Int("tasks", tasks).Int64("runs", runs).Msg("Reconciliation sent")
	r.events.Publish(&events.Event{
		Type:    evType,
		Message: fmt.Sprintf("%s reconciliation sent", kind),
		Metadata: map[string]string{
			"tasks": strconv.Itoa(tasks),
			"runs":  strconv.FormatInt(runs, 10),
		},
	})
}

// fail records a failed run. The error is returned to the scheduler, which
// logs it; the next firing is the retry.
func (r *TaskReconciler) fail(kind, stage string, err error) error {
	metrics.ReconciliationFailures.WithLabelValues(kind, stage).Inc()
	metrics.UpdateComponent("reconciler", false, err.Error())

	r.events.Publish(&events.Event{
		Type:     events.EventReconcileFailed,
		Message:  err.Error(),
		Metadata: map[string]string{"loop": kind, "stage": stage},
	})
	return err
}
