package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upswyng/alert-worker/internal/core"
	"github.com/upswyng/alert-worker/internal/domain/model"
	"github.com/upswyng/alert-worker/internal/mocks"
	"go.uber.org/mock/gomock"
)

func newTestScheduler(t *testing.T, cfg *core.SchedulerConfig) (*SchedulerService, *mocks.MockJobRepository, *mocks.MockJobIntrospector) {
	t.Helper()
	ctrl := gomock.NewController(t)
	jobs := mocks.NewMockJobRepository(ctrl)
	jobq := mocks.NewMockJobIntrospector(ctrl)
	svc, err := NewSchedulerService(SchedulerServiceOptions{Jobs: jobs, JobIntrospector: jobq, Config: cfg})
	require.NoError(t, err)
	return svc, jobs, jobq
}

func TestNewSchedulerService_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	jobs := mocks.NewMockJobRepository(ctrl)
	jobq := mocks.NewMockJobIntrospector(ctrl)

	_, err := NewSchedulerService(SchedulerServiceOptions{JobIntrospector: jobq})
	require.Error(t, err)
	_, err = NewSchedulerService(SchedulerServiceOptions{Jobs: jobs})
	require.Error(t, err)
	_, err = NewSchedulerService(SchedulerServiceOptions{
		Jobs:            jobs,
		JobIntrospector: jobq,
		Config:          &core.SchedulerConfig{Kind: "nightly_digest"},
	})
	require.ErrorIs(t, err, model.ErrInvalidJobKind)
}

func TestSchedulerService_TickEnqueuesWhenIdle(t *testing.T) {
	cfg := core.SchedulerConfig{Kind: model.JobKindCheckNewAlerts, Priority: 10, MaxRetries: 2}
	svc, jobs, jobq := newTestScheduler(t, &cfg)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	jobq.EXPECT().ActiveJobExists(ctx, model.JobKindCheckNewAlerts, now).Return(false, nil)
	jobs.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			assert.Equal(t, model.JobKindCheckNewAlerts, req.Kind)
			assert.Equal(t, 10, req.Priority)
			assert.Equal(t, 2, req.MaxRetries)

			var meta map[string]string
			require.NoError(t, json.Unmarshal(req.Metadata, &meta))
			assert.Equal(t, "scheduler", meta["trigger"])
			assert.Equal(t, "2024-01-01T12:00:00Z", meta["fired_at"])
			return &model.Job{ID: "j1", Kind: req.Kind}, nil
		})

	n, err := svc.Tick(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSchedulerService_TickSkipsWhileJobInFlight(t *testing.T) {
	svc, _, jobq := newTestScheduler(t, nil)
	ctx := context.Background()
	now := time.Now()

	jobq.EXPECT().ActiveJobExists(ctx, model.JobKindCheckNewAlerts, now).Return(true, nil)

	n, err := svc.Tick(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSchedulerService_TickErrors(t *testing.T) {
	svc, jobs, jobq := newTestScheduler(t, nil)
	ctx := context.Background()
	now := time.Now()

	jobq.EXPECT().ActiveJobExists(ctx, model.JobKindCheckNewAlerts, now).Return(false, errors.New("db down"))
	_, err := svc.Tick(ctx, now)
	require.ErrorContains(t, err, "check active check_new_alerts job")

	jobq.EXPECT().ActiveJobExists(ctx, model.JobKindCheckNewAlerts, now).Return(false, nil)
	jobs.EXPECT().Create(ctx, gomock.Any()).Return(nil, errors.New("insert failed"))
	n, err := svc.Tick(ctx, now)
	require.ErrorContains(t, err, "enqueue check_new_alerts job")
	assert.Zero(t, n)
}
