package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	assert.GreaterOrEqual(t, timer.Duration(), 20*time.Millisecond)
}

func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "test_duration_vec_seconds",
			Help: "Test duration histogram vec",
		},
		[]string{"kind"},
	)

	timer := NewTimer()
	timer.ObserveDurationVec(histogramVec, "explicit")
	timer.ObserveDurationVec(histogramVec, "explicit")
	timer.ObserveDuration(histogramVec.WithLabelValues("implicit"))

	assert.Equal(t, 2, testutil.CollectAndCount(histogramVec))
}
