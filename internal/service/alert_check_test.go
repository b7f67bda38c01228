package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upswyng/alert-worker/internal/data"
	"github.com/upswyng/alert-worker/internal/domain/alertcheck"
	"github.com/upswyng/alert-worker/internal/domain/model"
	"github.com/upswyng/alert-worker/internal/mocks"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
	"go.uber.org/mock/gomock"
)

var checkNow = time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC)

func startedAt(id string, ago time.Duration, processed bool) *model.Alert {
	s := checkNow.Add(-ago)
	return &model.Alert{ID: id, Start: &s, WasProcessed: processed}
}

func checkJob() *model.Job {
	return &model.Job{ID: "7d3f1b8e-2a4c-4f7e-9b1d-3c5e7a9f0b2d", Kind: model.JobKindCheckNewAlerts}
}

func newCheckHandler(t *testing.T, store alertcheck.Store, notifier alertcheck.Notifier, rec *statsd.Recorder) *AlertCheckHandler {
	t.Helper()
	opts := AlertCheckHandlerOptions{
		Store:    store,
		Notifier: notifier,
		Clock:    data.NewFixedTimeProvider(checkNow),
	}
	// A nil *Recorder in the Sink interface is not a nil Sink.
	if rec != nil {
		opts.Metrics = rec
	}
	h, err := NewAlertCheckHandler(opts)
	require.NoError(t, err)
	return h
}

func TestNewAlertCheckHandler_RequiresCollaborators(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAlertStore(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	clock := data.NewFixedTimeProvider(checkNow)

	_, err := NewAlertCheckHandler(AlertCheckHandlerOptions{Notifier: notifier, Clock: clock})
	require.Error(t, err)
	_, err = NewAlertCheckHandler(AlertCheckHandlerOptions{Store: store, Clock: clock})
	require.Error(t, err)
	_, err = NewAlertCheckHandler(AlertCheckHandlerOptions{Store: store, Notifier: notifier})
	require.Error(t, err)
}

func TestAlertCheckHandler_Handle(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAlertStore(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	rec := &statsd.Recorder{}
	h := newCheckHandler(t, store, notifier, rec)
	ctx := context.Background()

	fresh := startedAt("fresh", time.Hour, false)
	stale := startedAt("stale", 4*time.Hour, false)
	done := startedAt("done", time.Minute, true)

	store.EXPECT().ActiveAlerts(gomock.Any(), checkNow).Return([]*model.Alert{fresh, stale, done}, nil)
	store.EXPECT().Save(gomock.Any(), fresh).DoAndReturn(func(_ context.Context, a *model.Alert) error {
		assert.True(t, a.WasProcessed, "flag is set before the save")
		return nil
	})
	notifier.EXPECT().Notify(gomock.Any(), fresh).Return(errors.New("nats unavailable"))

	var progress []int
	res, err := h.Handle(ctx, checkJob(), alertcheck.ProgressFunc(func(_ context.Context, p int) {
		progress = append(progress, p)
	}))
	require.NoError(t, err)

	result, ok := res.(*model.AlertCheckResult)
	require.True(t, ok)
	assert.Equal(t, []string{"fresh"}, result.AlertsProcessed)
	assert.Equal(t, model.JobKindCheckNewAlerts, result.Kind)
	assert.Equal(t, []int{100, 100}, progress)

	processed := rec.Named("alert_check.processed")
	require.Len(t, processed, 1)
	assert.InDelta(t, 1, processed[0].Value, 0)
	assert.Equal(t, "success", processed[0].Tags["result"])
	failures := rec.Named("alert_check.notify_failures")
	require.Len(t, failures, 1)
	assert.InDelta(t, 1, failures[0].Value, 0)
	eligible := rec.Named("alert_check.eligible")
	require.Len(t, eligible, 1)
	assert.InDelta(t, 1, eligible[0].Value, 0)
}

func TestAlertCheckHandler_SaveFailureReturnsProcessingFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAlertStore(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	rec := &statsd.Recorder{}
	h := newCheckHandler(t, store, notifier, rec)

	a1 := startedAt("a1", time.Minute, false)
	a2 := startedAt("a2", 2*time.Minute, false)
	a3 := startedAt("a3", 3*time.Minute, false)
	cause := errors.New("write conflict")

	store.EXPECT().ActiveAlerts(gomock.Any(), checkNow).Return([]*model.Alert{a1, a2, a3}, nil)
	gomock.InOrder(
		store.EXPECT().Save(gomock.Any(), a1).Return(nil),
		notifier.EXPECT().Notify(gomock.Any(), a1).Return(nil),
		store.EXPECT().Save(gomock.Any(), a2).Return(cause),
	)

	res, err := h.Handle(context.Background(), checkJob(), nil)
	assert.Nil(t, res)

	var failure *alertcheck.ProcessingFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "a2", failure.AlertID)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{"a1"}, failure.AlertsProcessed())

	processed := rec.Named("alert_check.processed")
	require.Len(t, processed, 1)
	assert.InDelta(t, 1, processed[0].Value, 0)
	assert.Equal(t, "error", processed[0].Tags["result"])
}

func TestAlertCheckHandler_MalformedAlertAbortsBeforeSaving(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAlertStore(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	h := newCheckHandler(t, store, notifier, nil)

	store.EXPECT().ActiveAlerts(gomock.Any(), checkNow).Return([]*model.Alert{
		startedAt("ok", time.Minute, false),
		{ID: "nostart"},
	}, nil)

	_, err := h.Handle(context.Background(), checkJob(), nil)
	var sel *alertcheck.SelectionInputError
	require.ErrorAs(t, err, &sel)
	assert.Equal(t, "nostart", sel.AlertID)
}

func TestAlertCheckHandler_RejectsOtherKinds(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newCheckHandler(t, mocks.NewMockAlertStore(ctrl), mocks.NewMockNotifier(ctrl), nil)

	_, err := h.Handle(context.Background(), &model.Job{ID: "x", Kind: "other"}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidJobKind)
	assert.Equal(t, model.JobKindCheckNewAlerts, h.Kind())
}

func TestAlertCheckHandler_NoMetricsSink(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAlertStore(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	h := newCheckHandler(t, store, notifier, nil)

	a1 := startedAt("a1", time.Minute, false)
	store.EXPECT().ActiveAlerts(gomock.Any(), checkNow).Return([]*model.Alert{a1}, nil)
	store.EXPECT().Save(gomock.Any(), a1).Return(nil)
	notifier.EXPECT().Notify(gomock.Any(), a1).Return(errors.New("nats down"))

	res, err := h.Handle(context.Background(), checkJob(), nil)
	require.NoError(t, err)
	result, ok := res.(*model.AlertCheckResult)
	require.True(t, ok)
	assert.Equal(t, []string{"a1"}, result.AlertsProcessed)
}
