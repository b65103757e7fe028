package periodic

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleAtFixedRate_Validation(t *testing.T) {
	r := NewRunner()
	defer r.Stop()

	noop := func(ctx context.Context) error { return nil }

	tests := []struct {
		name         string
		initialDelay time.Duration
		period       time.Duration
		job          Job
	}{
		{"zero period", 0, 0, noop},
		{"negative period", 0, -time.Second, noop},
		{"negative initial delay", -time.Second, time.Second, noop},
		{"nil job", 0, time.Second, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, r.ScheduleAtFixedRate(tt.name, tt.initialDelay, tt.period, tt.job))
		})
	}
}

func TestScheduleAtFixedRate_AfterStop(t *testing.T) {
	r := NewRunner()
	r.Stop()
	r.Stop() // idempotent

	err := r.ScheduleAtFixedRate("late", 0, time.Second, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRunner_FiresRepeatedly(t *testing.T) {
	r := NewRunner()
	defer r.Stop()

	var runs atomic.Int32
	require.NoError(t, r.ScheduleAtFixedRate("repeat", 0, 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestRunner_HonoursInitialDelay(t *testing.T) {
	r := NewRunner()
	defer r.Stop()

	start := time.Now()
	firstFire := make(chan time.Time, 1)
	require.NoError(t, r.ScheduleAtFixedRate("delayed", 60*time.Millisecond, time.Hour, func(ctx context.Context) error {
		firstFire <- time.Now()
		return nil
	}))

	select {
	case at := <-firstFire:
		assert.GreaterOrEqual(t, at.Sub(start), 60*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("job never fired")
	}
}

func TestRunner_SurvivesErrorsAndPanics(t *testing.T) {
	r := NewRunner()
	defer r.Stop()

	var runs atomic.Int32
	require.NoError(t, r.ScheduleAtFixedRate("flaky", 0, 5*time.Millisecond, func(ctx context.Context) error {
		switch runs.Add(1) {
		case 1:
			return errors.New("store unreachable")
		case 2:
			panic("driver exploded")
		}
		return nil
	}))

	assert.Eventually(t, func() bool { return runs.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
}

func TestRunner_CatchesUpAfterOverrun(t *testing.T) {
	r := NewRunner()
	defer r.Stop()

	var (
		mu     sync.Mutex
		starts []time.Time
		ends   []time.Time
	)
	done := make(chan struct{})

	require.NoError(t, r.ScheduleAtFixedRate("slow", 0, 20*time.Millisecond, func(ctx context.Context) error {
		mu.Lock()
		n := len(starts)
		starts = append(starts, time.Now())
		mu.Unlock()

		if n == 0 {
			time.Sleep(70 * time.Millisecond)
		}

		mu.Lock()
		ends = append(ends, time.Now())
		if len(ends) == 2 {
			close(done)
		}
		mu.Unlock()
		return nil
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second firing never happened")
	}

	mu.Lock()
	defer mu.Unlock()
	// The second firing was due long before the first one finished, so it
	// starts straight away rather than a full period later.
	assert.Less(t, starts[1].Sub(ends[0]), 15*time.Millisecond)
}

func TestRunner_StopHaltsFirings(t *testing.T) {
	r := NewRunner()

	var runs atomic.Int32
	require.NoError(t, r.ScheduleAtFixedRate("stoppable", 0, 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	r.Stop()
	r.Wait()
	after := runs.Load()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestRunner_JobsAreIndependent(t *testing.T) {
	r := NewRunner()
	defer r.Stop()

	block := make(chan struct{})
	defer close(block)

	var fast atomic.Int32
	require.NoError(t, r.ScheduleAtFixedRate("stuck", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-block
		return nil
	}))
	require.NoError(t, r.ScheduleAtFixedRate("fast", 0, 5*time.Millisecond, func(ctx context.Context) error {
		fast.Add(1)
		return nil
	}))

	assert.Eventually(t, func() bool { return fast.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}
