package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upswyng/alert-worker/config"
	"github.com/upswyng/alert-worker/internal/core"
	"github.com/upswyng/alert-worker/internal/domain/model"
	"github.com/upswyng/alert-worker/internal/mocks"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
	"go.uber.org/mock/gomock"
)

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:         time.Minute,
		PendingMaxAge:    time.Hour,
		CompletedMaxAge:  24 * time.Hour,
		FailedMaxAge:     48 * time.Hour,
		JobResultsMaxAge: 72 * time.Hour,
		BatchSize:        100,
	}
}

func newTestReaper(t *testing.T) (*ReaperService, *mocks.MockReaperRepository, *statsd.Recorder) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockReaperRepository(ctrl)
	rec := &statsd.Recorder{}
	svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig(), Metrics: rec})
	require.NoError(t, err)
	return svc, repo, rec
}

func TestNewReaperService_RequiresRepo(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{})
	require.Error(t, err)
}

func TestReaperService_RunOnceDrainsEveryTarget(t *testing.T) {
	svc, repo, rec := newTestReaper(t)
	ctx := context.Background()

	gomock.InOrder(
		repo.EXPECT().FailStalePendingJobs(ctx, time.Hour, 100).Return(int64(100), nil),
		repo.EXPECT().FailStalePendingJobs(ctx, time.Hour, 100).Return(int64(3), nil),
		repo.EXPECT().FailStalePendingJobs(ctx, time.Hour, 100).Return(int64(0), nil),
	)
	repo.EXPECT().DeleteOldJobs(ctx, core.DeleteOldJobsParams{
		Status: model.JobStatusCompleted, MaxAge: 24 * time.Hour, BatchSize: 100,
	}).Return(int64(0), nil)
	gomock.InOrder(
		repo.EXPECT().DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			Status: model.JobStatusFailed, MaxAge: 48 * time.Hour, BatchSize: 100,
		}).Return(int64(2), nil),
		repo.EXPECT().DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			Status: model.JobStatusFailed, MaxAge: 48 * time.Hour, BatchSize: 100,
		}).Return(int64(0), nil),
	)
	repo.EXPECT().DeleteOldJobResults(ctx, core.DeleteOldJobResultsParams{
		JobKind: model.JobKindCheckNewAlerts, MaxAge: 72 * time.Hour, BatchSize: 100,
	}).Return(int64(0), nil)

	require.NoError(t, svc.RunOnce(ctx))

	rows := map[string]float64{}
	for _, s := range rec.Named("job.reaper.rows") {
		rows[s.Tags["target"]] = s.Value
	}
	assert.Equal(t, map[string]float64{
		"pending_jobs":   103,
		"completed_jobs": 0,
		"failed_jobs":    2,
		"job_results":    0,
	}, rows)

	pass := rec.Named("reaper.cleanup")
	require.Len(t, pass, 1)
	assert.Equal(t, "success", pass[0].Tags["result"])
	assert.Len(t, rec.Named("reaper.last_success_epoch"), 1)
}

func TestReaperService_RunOnceContinuesAfterStepError(t *testing.T) {
	svc, repo, rec := newTestReaper(t)
	ctx := context.Background()

	repo.EXPECT().FailStalePendingJobs(ctx, gomock.Any(), gomock.Any()).Return(int64(0), errors.New("lock timeout"))
	repo.EXPECT().DeleteOldJobs(ctx, gomock.Any()).Return(int64(0), nil).Times(2)
	repo.EXPECT().DeleteOldJobResults(ctx, gomock.Any()).Return(int64(0), nil)

	err := svc.RunOnce(ctx)
	require.ErrorContains(t, err, "pending_jobs: lock timeout")

	pass := rec.Named("reaper.cleanup")
	require.Len(t, pass, 1)
	assert.Equal(t, "error", pass[0].Tags["result"])
	assert.Empty(t, rec.Named("reaper.last_success_epoch"))
}

func TestReaperService_RunOnceCanceled(t *testing.T) {
	svc, repo, _ := newTestReaper(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo.EXPECT().FailStalePendingJobs(ctx, gomock.Any(), gomock.Any()).Return(int64(0), context.Canceled)
	repo.EXPECT().DeleteOldJobs(ctx, gomock.Any()).Return(int64(0), context.Canceled).Times(2)
	repo.EXPECT().DeleteOldJobResults(ctx, gomock.Any()).Return(int64(0), context.Canceled)

	assert.ErrorIs(t, svc.RunOnce(ctx), context.Canceled)
}

func TestReaperService_RunStopsOnCancel(t *testing.T) {
	svc, repo, _ := newTestReaper(t)
	repo.EXPECT().FailStalePendingJobs(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()
	repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()
	repo.EXPECT().DeleteOldJobResults(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
