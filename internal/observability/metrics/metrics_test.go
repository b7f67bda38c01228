package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
)

func TestEmitJobLifecycle(t *testing.T) {
	var rec statsd.Recorder
	EmitJobLifecycle(&rec, JobMetric{
		JobKind:    "check_new_alerts",
		Transition: TransitionFailed,
		Result:     ResultError,
		Duration:   time.Second,
		Err:        context.DeadlineExceeded,
	})

	counts := rec.Named("job.transition")
	require.Len(t, counts, 1)
	assert.Equal(t, map[string]string{
		"job_kind":    "check_new_alerts",
		"transition":  TransitionFailed,
		"result":      ResultError,
		"error_class": "timeout",
	}, counts[0].Tags)
	require.Len(t, rec.Named("job.duration"), 1)
}

func TestEmitJobLifecycle_NoDurationNoTiming(t *testing.T) {
	var rec statsd.Recorder
	EmitJobLifecycle(&rec, JobMetric{JobKind: "k", Transition: TransitionEnqueued, Result: ResultSuccess})
	assert.Empty(t, rec.Named("job.duration"))
	assert.NotContains(t, rec.Named("job.transition")[0].Tags, "error_class")

	EmitJobLifecycle(nil, JobMetric{})
}

func TestEmitAlertCheck(t *testing.T) {
	t.Run("noop run", func(t *testing.T) {
		var rec statsd.Recorder
		EmitAlertCheck(&rec, AlertCheckMetric{Active: 4})
		processed := rec.Named("alert_check.processed")
		require.Len(t, processed, 1)
		assert.Equal(t, ResultNoop, processed[0].Tags["result"])
		assert.Empty(t, rec.Named("alert_check.notify_failures"))
	})

	t.Run("failed run", func(t *testing.T) {
		var rec statsd.Recorder
		EmitAlertCheck(&rec, AlertCheckMetric{Active: 3, Eligible: 3, Processed: 1, NotifyFailures: 1, Duration: time.Millisecond, Err: errors.New("x")})
		processed := rec.Named("alert_check.processed")
		require.Len(t, processed, 1)
		assert.Equal(t, ResultError, processed[0].Tags["result"])
		assert.InDelta(t, 1.0, processed[0].Value, 0)
		assert.Len(t, rec.Named("alert_check.notify_failures"), 1)
		assert.Len(t, rec.Named("alert_check.duration"), 1)
	})
}

func TestEmitReapAndNotification(t *testing.T) {
	var rec statsd.Recorder
	EmitReap(&rec, ReapMetric{Target: "jobs_completed", Affected: 7})
	EmitNotification(&rec, "nats", errors.New("no responders"))

	reap := rec.Named("job.reaper.rows")
	require.Len(t, reap, 1)
	assert.InDelta(t, 7.0, reap[0].Value, 0)
	note := rec.Named("alert.notification")
	require.Len(t, note, 1)
	assert.Equal(t, ResultError, note[0].Tags["result"])
}
