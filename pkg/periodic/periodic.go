package periodic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/rookery/pkg/log"
	"github.com/cuemby/rookery/pkg/metrics"
)

// ErrStopped is returned when registering a job on a stopped runner
var ErrStopped = errors.New("periodic runner stopped")

// Job is one unit of periodic work. A returned error is logged and does not
// affect later firings.
type Job func(ctx context.Context) error

// Scheduler schedules periodic work with an initial delay and a fixed rate
type Scheduler interface {
	ScheduleAtFixedRate(name string, initialDelay, period time.Duration, job Job) error
}

// Runner is a Scheduler that runs every registered job on its own goroutine.
//
// Firing k of a job is due at registration + initialDelay + k*period. When a run
// overruns, the firings that became due meanwhile execute back-to-back.
type Runner struct {
	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

var _ Scheduler = (*Runner)(nil)

// NewRunner creates a new runner
func NewRunner() *Runner {
	return &Runner{
		stopCh: make(chan struct{}),
	}
}

// ScheduleAtFixedRate registers job and returns immediately
func (r *Runner) ScheduleAtFixedRate(name string, initialDelay, period time.Duration, job Job) error {
	if period <= 0 {
		return fmt.Errorf("job %s: period must be positive, got %v", name, period)
	}
	if initialDelay < 0 {
		return fmt.Errorf("job %s: initial delay must not be negative, got %v", name, initialDelay)
	}
	if job == nil {
		return fmt.Errorf("job %s: nil job", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}

	first := time.Now().Add(initialDelay)
	r.wg.Add(1)
	go r.loop(name, first, period, job)

	logger := log.WithJob(name)
	logger.Debug().
		Dur("initial_delay", initialDelay).
		Dur("period", period).
		Msg("Periodic job scheduled")
	return nil
}

// Stop stops scheduling further firings. A run already in progress is left
// to finish on its own.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.stopCh)
}

// Wait blocks until every job goroutine has returned. Only meaningful after Stop.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(name string, next time.Time, period time.Duration, job Job) {
	defer r.wg.Done()

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
		case <-r.stopCh:
			return
		}

		for !time.Now().Before(next) {
			select {
			case <-r.stopCh:
				return
			default:
			}

			metrics.PeriodicLateness.WithLabelValues(name).Observe(time.Since(next).Seconds())
			r.fire(name, job)
			next = next.Add(period)
		}

		timer.Reset(time.Until(next))
	}
}

// fire runs one firing, containing errors and panics so later firings are
// still scheduled
func (r *Runner) fire(name string, job Job) {
	logger := log.WithJob(name)
	result := "success"

	defer func() {
		if p := recover(); p != nil {
			result = "panic"
			logger.Error().Interface("panic", p).Msg("Periodic job panicked")
		}
		metrics.PeriodicRunsTotal.WithLabelValues(name, result).Inc()
	}()

	if err := job(context.Background()); err != nil {
		result = "error"
		logger.Warn().Err(err).Msg("Periodic job failed, will retry on next firing")
	}
}
