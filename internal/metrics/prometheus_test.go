package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/surge/internal/ramp"
)

func TestCollector_Record(t *testing.T) {
	c := NewCollector(nil)

	c.Record(outcome(ramp.StatusOK, 5*time.Millisecond, ramp.CheckResult{Name: "status was 200", Passed: true}))
	c.Record(outcome(ramp.StatusCheckFailed, 5*time.Millisecond, ramp.CheckResult{Name: "status was 200", Passed: false}))
	c.Record(outcome(ramp.StatusError, 5*time.Millisecond))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.iterations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.iterations.WithLabelValues("check_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.iterations.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checks.WithLabelValues("status was 200", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checks.WithLabelValues("status was 200", "fail")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(func() *ramp.Stats {
		return &ramp.Stats{ActiveWorkers: 7, TargetWorkers: 9, Progress: 0.25, SpawnFailures: 3}
	})
	c.Record(outcome(ramp.StatusOK, time.Millisecond))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, "surge_active_workers 7")
	assert.Contains(t, text, "surge_target_workers 9")
	assert.Contains(t, text, "surge_progress_ratio 0.25")
	assert.Contains(t, text, "# TYPE surge_spawn_failures_total counter")
	assert.Contains(t, text, "surge_spawn_failures_total 3")
	assert.Contains(t, text, `surge_iterations_total{status="ok"} 1`)
	assert.Contains(t, text, "surge_iteration_duration_seconds_count 1")
}

func TestCollector_OwnRegistry(t *testing.T) {
	// Two collectors in one process must not collide.
	require.NotPanics(t, func() {
		NewCollector(nil)
		NewCollector(nil)
	})
}
