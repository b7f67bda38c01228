package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upswyng/alert-worker/internal/core"
	"github.com/upswyng/alert-worker/internal/domain/alertcheck"
	"github.com/upswyng/alert-worker/internal/domain/model"
	apperrors "github.com/upswyng/alert-worker/internal/errors"
	"github.com/upswyng/alert-worker/internal/mocks"
	"github.com/upswyng/alert-worker/internal/observability/notify"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
	"github.com/upswyng/alert-worker/internal/service"
	"github.com/upswyng/alert-worker/internal/service/failurenotifier"
	"go.uber.org/mock/gomock"
)

type quietWakeups struct{ ch chan struct{} }

func (w *quietWakeups) Subscribe(model.JobKind) (func(), <-chan struct{}) {
	return func() {}, w.ch
}

func (w *quietWakeups) StopAll() {}

type failureCapture struct {
	mu       sync.Mutex
	payloads []notify.JobFailurePayload
}

func (c *failureCapture) service() *failurenotifier.Service {
	return failurenotifier.NewService(failurenotifier.Options{
		Sinks: []failurenotifier.SinkRegistration{{
			Name: "capture",
			Sink: notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
				c.mu.Lock()
				defer c.mu.Unlock()
				c.payloads = append(c.payloads, p)
				return nil
			}),
		}},
	})
}

type runnerFixture struct {
	runner   *Runner
	repo     *mocks.MockJobRepository
	results  *mocks.MockJobResultRepository
	progress *mocks.MockProgressPublisher
	metrics  *statsd.Recorder
}

func newRunnerFixture(t *testing.T, lease time.Duration, notifier *failurenotifier.Service) runnerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	results := mocks.NewMockJobResultRepository(ctrl)
	progress := mocks.NewMockProgressPublisher(ctrl)
	rec := &statsd.Recorder{}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:            repo,
		DefaultLease:    lease,
		FailureNotifier: notifier,
		Wakeups:         &quietWakeups{ch: make(chan struct{})},
	})
	require.NoError(t, err)

	r, err := NewRunner(RunnerOptions{
		Jobs:       jobs,
		JobResults: results,
		Progress:   progress,
		Metrics:    rec,
		Lease:      lease,
	})
	require.NoError(t, err)
	return runnerFixture{runner: r, repo: repo, results: results, progress: progress, metrics: rec}
}

func alertJob() *model.Job {
	return &model.Job{ID: "job-1", Kind: model.JobKindCheckNewAlerts, MaxRetries: 3, Status: model.JobStatusRunning}
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)

	f := newRunnerFixture(t, time.Minute, nil)
	_, err = NewRunner(RunnerOptions{Jobs: f.runner.jobs, Kind: model.JobKind("digest")})
	require.ErrorIs(t, err, model.ErrInvalidJobKind)

	assert.Equal(t, model.JobKindCheckNewAlerts, f.runner.kind)
	assert.Equal(t, 1, f.runner.workers)
}

func TestProcessJob_Success(t *testing.T) {
	f := newRunnerFixture(t, time.Minute, nil)
	job := alertJob()

	f.runner.Register(model.JobKindCheckNewAlerts, func(ctx context.Context, j *model.Job, progress ProgressFunc) (any, error) {
		progress(ctx, 50)
		progress(ctx, 100)
		progress(ctx, 100)
		return model.NewAlertCheckResult(j, []string{"a1", "a2"})
	})

	gomock.InOrder(
		f.repo.EXPECT().UpdateProgress(gomock.Any(), job.ID, 50).Return(true, nil),
		f.repo.EXPECT().UpdateProgress(gomock.Any(), job.ID, 100).Return(true, nil),
	)
	var published []int
	f.progress.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, snap core.ProgressSnapshot) error {
			assert.Equal(t, job.ID, snap.JobID)
			assert.Equal(t, model.JobKindCheckNewAlerts, snap.Kind)
			published = append(published, snap.Percent)
			return nil
		}).Times(2)
	f.results.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.UpsertJobResultParams) error {
			assert.Equal(t, job.ID, p.JobID)
			assert.Equal(t, model.JobKindCheckNewAlerts, p.JobKind)
			assert.JSONEq(t, `{"kind":"check_new_alerts","alerts_processed":["a1","a2"],"job_name":"check_new_alerts"}`, string(p.Result))
			return nil
		})
	f.repo.EXPECT().Complete(gomock.Any(), job.ID).Return(true, nil)

	f.runner.processJob(context.Background(), job)

	assert.Equal(t, []int{50, 100}, published)
	completed := f.metrics.Named("job.transition")
	require.NotEmpty(t, completed)
	last := completed[len(completed)-1]
	assert.Equal(t, "completed", last.Tags["transition"])
	assert.Equal(t, "success", last.Tags["result"])
}

func TestProcessJob_ProgressPublishErrorIsNotFatal(t *testing.T) {
	f := newRunnerFixture(t, time.Minute, nil)
	job := alertJob()

	f.runner.Register(model.JobKindCheckNewAlerts, func(ctx context.Context, j *model.Job, progress ProgressFunc) (any, error) {
		progress(ctx, 100)
		return nil, nil
	})

	f.repo.EXPECT().UpdateProgress(gomock.Any(), job.ID, 100).Return(true, nil)
	f.progress.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("redis unavailable"))
	f.repo.EXPECT().Complete(gomock.Any(), job.ID).Return(true, nil)

	f.runner.processJob(context.Background(), job)
}

func TestProcessJob_ProcessingFailurePersistsPartialResult(t *testing.T) {
	var captured failureCapture
	f := newRunnerFixture(t, time.Minute, captured.service())
	job := alertJob()

	partial, err := model.NewAlertCheckResult(job, []string{"a1"})
	require.NoError(t, err)
	failure := &alertcheck.ProcessingFailure{AlertID: "a2", Cause: errors.New("write conflict"), Partial: partial}

	f.runner.Register(model.JobKindCheckNewAlerts, func(context.Context, *model.Job, ProgressFunc) (any, error) {
		return nil, failure
	})

	f.results.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.UpsertJobResultParams) error {
			var got model.AlertCheckFailureResult
			require.NoError(t, json.Unmarshal(p.Result, &got))
			assert.Equal(t, []string{"a1"}, got.AlertsProcessed)
			assert.Equal(t, "a2", got.FailedAlertID)
			assert.Equal(t, "write conflict", got.Error)
			return nil
		})
	f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(job, nil)
	f.repo.EXPECT().Fail(gomock.Any(), job.ID, "process alert a2: write conflict").Return(true, nil)

	f.runner.processJob(context.Background(), job)

	require.Len(t, captured.payloads, 1)
	p := captured.payloads[0]
	assert.Equal(t, string(model.JobKindCheckNewAlerts), p.JobKind)
	assert.False(t, p.Final)
	assert.Equal(t, "alert_check_runner", p.Metadata["component"])
	assert.Equal(t, "a2", p.Metadata["failed_alert_id"])
	assert.Equal(t, "1", p.Metadata["alerts_processed_count"])
	assert.Equal(t, "a1", p.Metadata["alerts_processed"])
	assert.Equal(t, "false", p.Metadata["transient"])
}

func TestProcessJob_TransientSaveFailureIsFlagged(t *testing.T) {
	var captured failureCapture
	f := newRunnerFixture(t, time.Minute, captured.service())
	job := alertJob()

	cause := apperrors.Wrap(errors.New("connection reset"), apperrors.ErrCodeUnavailable, "database unavailable")
	failure := &alertcheck.ProcessingFailure{AlertID: "a1", Cause: cause}

	f.runner.Register(model.JobKindCheckNewAlerts, func(context.Context, *model.Job, ProgressFunc) (any, error) {
		return nil, failure
	})

	f.results.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(job, nil)
	f.repo.EXPECT().Fail(gomock.Any(), job.ID, failure.Error()).Return(true, nil)

	f.runner.processJob(context.Background(), job)

	require.Len(t, captured.payloads, 1)
	p := captured.payloads[0]
	assert.Equal(t, "true", p.Metadata["transient"])
	assert.Equal(t, "a1", p.Metadata["failed_alert_id"])
}

func TestProcessJob_MissingHandlerFailsJob(t *testing.T) {
	f := newRunnerFixture(t, time.Minute, nil)
	job := alertJob()

	f.repo.EXPECT().Fail(gomock.Any(), job.ID, "no handler for job kind check_new_alerts").Return(true, nil)

	f.runner.processJob(context.Background(), job)
}

func TestProcessJob_HandlerPanicFailsJob(t *testing.T) {
	var captured failureCapture
	f := newRunnerFixture(t, time.Minute, captured.service())
	job := alertJob()

	f.runner.Register(model.JobKindCheckNewAlerts, func(context.Context, *model.Job, ProgressFunc) (any, error) {
		var seen map[string]bool
		seen["a1"] = true
		return nil, nil
	})

	f.repo.EXPECT().GetByID(gomock.Any(), job.ID).Return(job, nil)
	f.repo.EXPECT().Fail(gomock.Any(), job.ID, "handler panic: assignment to entry in nil map").Return(true, nil)

	require.NotPanics(t, func() { f.runner.processJob(context.Background(), job) })

	require.Len(t, captured.payloads, 1)
	assert.Contains(t, captured.payloads[0].Error, "handler panic")

	transitions := f.metrics.Named("job.transition")
	require.NotEmpty(t, transitions)
	last := transitions[len(transitions)-1]
	assert.Equal(t, "failed", last.Tags["transition"])
	assert.Equal(t, "error", last.Tags["result"])
}

func TestProcessJob_LeaseLossCancelsHandler(t *testing.T) {
	f := newRunnerFixture(t, time.Second, nil)
	job := alertJob()

	f.runner.Register(model.JobKindCheckNewAlerts, func(ctx context.Context, _ *model.Job, _ ProgressFunc) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
			return nil, errors.New("handler was not cancelled")
		}
	})

	f.repo.EXPECT().Heartbeat(gomock.Any(), job.ID, 1).Return(false, nil)
	f.repo.EXPECT().Fail(gomock.Any(), job.ID, context.Canceled.Error()).Return(false, nil)

	start := time.Now()
	f.runner.processJob(context.Background(), job)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newRunnerFixture(t, time.Minute, nil)
	f.repo.EXPECT().ReserveNext(gomock.Any(), model.JobKindCheckNewAlerts, 60).
		Return(nil, model.ErrNoJobsAvailable).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.runner.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRun_ReserveErrorStopsRunner(t *testing.T) {
	f := newRunnerFixture(t, time.Minute, nil)
	f.repo.EXPECT().ReserveNext(gomock.Any(), model.JobKindCheckNewAlerts, 60).
		Return(nil, errors.New("connection refused"))

	err := f.runner.Run(context.Background())
	require.ErrorContains(t, err, "reserve next")
}
