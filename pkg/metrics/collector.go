package metrics

import (
	"context"
	"time"

	"github.com/cuemby/rookery/pkg/log"
	"github.com/cuemby/rookery/pkg/types"
)

// TaskLister is the part of the task store the collector reads
type TaskLister interface {
	ListTasks(ctx context.Context) ([]*types.TaskRecord, error)
}

// Collector periodically publishes task store gauges
type Collector struct {
	store    TaskLister
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store TaskLister, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	tasks, err := c.store.ListTasks(ctx)
	if err != nil {
		logger := log.WithComponent("collector")
		logger.Warn().Err(err).Msg("Failed to list tasks for metrics")
		UpdateComponent("storage", false, err.Error())
		return
	}
	UpdateComponent("storage", true, "")

	counts := make(map[types.TaskState]int, len(types.AllTaskStates))
	for _, task := range tasks {
		counts[task.State]++
	}

	// Every known state is written so drained states drop back to zero
	for _, state := range types.AllTaskStates {
		TasksTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
