package alertcheck

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upswyng/alert-worker/internal/domain/model"
	"github.com/upswyng/alert-worker/internal/mocks"
	"go.uber.org/mock/gomock"
)

func runParams(store Store, notifier Notifier, progress ProgressReporter) Params {
	return Params{
		Job:      checkJob(),
		Clock:    fixedClock{t: testNow},
		Store:    store,
		Notifier: notifier,
		Progress: progress,
	}
}

func TestProcess_Scenario(t *testing.T) {
	store := newMemStore(
		alertAt("A", testNow.Add(-time.Hour), false),
		alertAt("B", testNow.Add(-4*time.Hour), false),
		alertAt("C", testNow.Add(-30*time.Minute), true),
	)
	notifier := &recordingNotifier{}
	progress := &progressRecorder{}

	res, err := Process(context.Background(), runParams(store, notifier, progress))
	require.NoError(t, err)

	assert.Equal(t, model.JobKindCheckNewAlerts, res.Kind)
	assert.Equal(t, "check_new_alerts", res.JobName)
	assert.Equal(t, []string{"A"}, res.AlertsProcessed)
	assert.Equal(t, []string{"A"}, notifier.notified)
	assert.Equal(t, []string{"A"}, store.saves)
	assert.Equal(t, []string{"A", "C"}, store.processedIDs())
	assert.False(t, store.processed("B"))

	values := progress.all()
	require.NotEmpty(t, values)
	assert.Equal(t, 100, values[len(values)-1])
}

func TestProcess_ZeroEligible(t *testing.T) {
	store := newMemStore(
		alertAt("old", testNow.Add(-5*time.Hour), false),
		alertAt("done", testNow.Add(-time.Minute), true),
		alertAt("future", testNow.Add(time.Hour), false),
	)
	notifier := &recordingNotifier{}
	progress := &progressRecorder{}

	res, err := Process(context.Background(), runParams(store, notifier, progress))
	require.NoError(t, err)

	assert.NotNil(t, res.AlertsProcessed)
	assert.Empty(t, res.AlertsProcessed)
	assert.Equal(t, []int{100}, progress.all())
	assert.Empty(t, store.saves)
	assert.Empty(t, notifier.notified)
}

func TestProcess_EmptyStore(t *testing.T) {
	progress := &progressRecorder{}
	res, err := Process(context.Background(), runParams(newMemStore(), &recordingNotifier{}, progress))
	require.NoError(t, err)
	assert.Empty(t, res.AlertsProcessed)
	assert.Equal(t, []int{100}, progress.all())
}

func TestProcess_PartialFailure(t *testing.T) {
	store := newMemStore(
		alertAt("1", testNow.Add(-10*time.Minute), false),
		alertAt("2", testNow.Add(-20*time.Minute), false),
		alertAt("3", testNow.Add(-30*time.Minute), false),
	)
	saveErr := errors.New("connection reset")
	store.failOn["2"] = saveErr
	notifier := &recordingNotifier{}
	progress := &progressRecorder{}

	res, err := Process(context.Background(), runParams(store, notifier, progress))
	require.Error(t, err)
	assert.Nil(t, res)

	var failure *ProcessingFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "2", failure.AlertID)
	assert.ErrorIs(t, err, saveErr)
	assert.Equal(t, []string{"1"}, failure.AlertsProcessed())
	require.NotNil(t, failure.Partial)
	assert.Equal(t, model.JobKindCheckNewAlerts, failure.Partial.Kind)

	assert.True(t, store.processed("1"))
	assert.False(t, store.processed("2"))
	assert.False(t, store.processed("3"))
	assert.Equal(t, []string{"1", "2"}, store.saves, "no alert is attempted after the first failure")
	assert.Equal(t, []string{"1"}, notifier.notified)

	assert.Equal(t, []int{33}, progress.all())
	assert.NotContains(t, progress.all(), 100)
}

func TestProcess_FailedAlertIsRetriedNextRun(t *testing.T) {
	store := newMemStore(
		alertAt("1", testNow.Add(-10*time.Minute), false),
		alertAt("2", testNow.Add(-20*time.Minute), false),
	)
	store.failOn["2"] = errors.New("timeout")

	_, err := Process(context.Background(), runParams(store, &recordingNotifier{}, nil))
	require.Error(t, err)

	delete(store.failOn, "2")
	res, err := Process(context.Background(), runParams(store, &recordingNotifier{}, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, res.AlertsProcessed)
	assert.Equal(t, []string{"1", "2"}, store.processedIDs())
}

func TestProcess_Idempotent(t *testing.T) {
	store := newMemStore(
		alertAt("a", testNow.Add(-time.Hour), false),
		alertAt("b", testNow.Add(-2*time.Hour), false),
	)

	first, err := Process(context.Background(), runParams(store, &recordingNotifier{}, nil))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, first.AlertsProcessed)

	progress := &progressRecorder{}
	second, err := Process(context.Background(), runParams(store, &recordingNotifier{}, progress))
	require.NoError(t, err)
	assert.Empty(t, second.AlertsProcessed)
	assert.Equal(t, []int{100}, progress.all())
	assert.Equal(t, []string{"a", "b"}, store.processedIDs())
}

func TestProcess_ProgressMonotonic(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 9, 40} {
		t.Run(fmt.Sprintf("%d alerts", n), func(t *testing.T) {
			var alerts []model.Alert
			for i := range n {
				alerts = append(alerts, alertAt(fmt.Sprintf("a%d", i), testNow.Add(-time.Duration(i)*time.Minute), false))
			}
			progress := &progressRecorder{}

			res, err := Process(context.Background(), runParams(newMemStore(alerts...), &recordingNotifier{}, progress))
			require.NoError(t, err)
			assert.Len(t, res.AlertsProcessed, n)

			values := progress.all()
			require.Len(t, values, n+1, "one report per alert plus the final report")
			for i := 1; i < len(values); i++ {
				assert.GreaterOrEqual(t, values[i], values[i-1])
			}
			for _, v := range values {
				assert.GreaterOrEqual(t, v, 0)
				assert.LessOrEqual(t, v, 100)
			}
			assert.Equal(t, 100, values[len(values)-1])
		})
	}
}

func TestProcess_NotifyFailureIsNotFatal(t *testing.T) {
	store := newMemStore(
		alertAt("a", testNow.Add(-time.Minute), false),
		alertAt("b", testNow.Add(-2*time.Minute), false),
	)
	notifier := &recordingNotifier{failOn: map[string]error{"a": errors.New("nats: no responders")}}

	sum, err := Run(context.Background(), runParams(store, notifier, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sum.Result.AlertsProcessed)
	assert.Equal(t, 1, sum.NotifyFailures)
	assert.True(t, store.processed("a"), "notify failure does not revert the processed flag")
	assert.True(t, store.processed("b"))
}

func TestRun_Summary(t *testing.T) {
	store := newMemStore(
		alertAt("a", testNow.Add(-time.Minute), false),
		alertAt("b", testNow.Add(-5*time.Hour), false),
		alertAt("c", testNow.Add(-time.Minute), true),
	)
	sum, err := Run(context.Background(), runParams(store, &recordingNotifier{}, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Active)
	assert.Equal(t, 1, sum.Eligible)
	assert.Equal(t, 0, sum.NotifyFailures)
}

func TestProcess_CancelledMidBatch(t *testing.T) {
	store := newMemStore(
		alertAt("a", testNow.Add(-time.Minute), false),
		alertAt("b", testNow.Add(-2*time.Minute), false),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := NotifierFunc(func(context.Context, *model.Alert) error {
		cancel()
		return nil
	})

	_, err := Process(ctx, runParams(store, notifier, nil))
	var failure *ProcessingFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "b", failure.AlertID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, failure.AlertsProcessed())
	assert.True(t, store.processed("a"))
	assert.False(t, store.processed("b"))
}

func TestProcess_SelectionInputErrorAbortsBeforeSaving(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAlertStore(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)

	good := alertAt("good", testNow.Add(-time.Minute), false)
	store.EXPECT().ActiveAlerts(gomock.Any(), testNow).Return([]*model.Alert{&good, {ID: "broken"}}, nil)
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Times(0)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(0)
	progress := &progressRecorder{}

	_, err := Process(context.Background(), runParams(store, notifier, progress))
	var sel *SelectionInputError
	require.ErrorAs(t, err, &sel)
	assert.Equal(t, "broken", sel.AlertID)
	assert.ErrorIs(t, err, ErrMissingStart)
	assert.Empty(t, progress.all())
}

func TestProcess_StoreQueryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAlertStore(ctrl)
	queryErr := errors.New("db down")
	store.EXPECT().ActiveAlerts(gomock.Any(), gomock.Any()).Return(nil, queryErr)

	_, err := Process(context.Background(), runParams(store, mocks.NewMockNotifier(ctrl), nil))
	require.ErrorIs(t, err, queryErr)
}

func TestProcess_SavesBeforeNotifying(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAlertStore(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)

	a := alertAt("a", testNow.Add(-time.Minute), false)
	store.EXPECT().ActiveAlerts(gomock.Any(), testNow).Return([]*model.Alert{&a}, nil)
	gomock.InOrder(
		store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, saved *model.Alert) error {
			assert.True(t, saved.WasProcessed, "flag is set before the save")
			return nil
		}),
		notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil),
	)

	res, err := Process(context.Background(), runParams(store, notifier, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.AlertsProcessed)
}

func TestProcess_RejectsWrongKindAndMissingCollaborators(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}

	p := runParams(store, notifier, nil)
	p.Job = &model.Job{ID: "x", Kind: model.JobKind("check_links")}
	_, err := Process(context.Background(), p)
	require.ErrorIs(t, err, model.ErrInvalidJobKind)

	p = runParams(store, notifier, nil)
	p.Clock = nil
	_, err = Process(context.Background(), p)
	assert.Error(t, err)

	p = runParams(nil, notifier, nil)
	_, err = Process(context.Background(), p)
	assert.Error(t, err)

	p = runParams(store, nil, nil)
	_, err = Process(context.Background(), p)
	assert.Error(t, err)

	p = runParams(store, notifier, nil)
	p.Job = nil
	_, err = Process(context.Background(), p)
	assert.Error(t, err)
}

func TestProcessingFailure_PartialResult(t *testing.T) {
	f := &ProcessingFailure{
		AlertID: "2",
		Cause:   errors.New("boom"),
		Partial: &model.AlertCheckResult{Kind: model.JobKindCheckNewAlerts, AlertsProcessed: []string{"1"}, JobName: "check_new_alerts"},
	}
	got, ok := f.PartialResult().(*model.AlertCheckFailureResult)
	require.True(t, ok)
	assert.Equal(t, "2", got.FailedAlertID)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, []string{"1"}, got.AlertsProcessed)

	assert.Nil(t, (&ProcessingFailure{AlertID: "x", Cause: errors.New("y")}).PartialResult())
}

func TestProcessingFailure_FailureMetadata(t *testing.T) {
	f := &ProcessingFailure{
		AlertID: "3",
		Cause:   errors.New("boom"),
		Partial: &model.AlertCheckResult{Kind: model.JobKindCheckNewAlerts, AlertsProcessed: []string{"1", "2"}},
	}
	assert.Equal(t, map[string]string{
		"failed_alert_id":        "3",
		"alerts_processed_count": "2",
		"alerts_processed":       "1,2",
	}, f.FailureMetadata())

	empty := &ProcessingFailure{AlertID: "1", Cause: errors.New("boom")}
	md := empty.FailureMetadata()
	assert.Equal(t, "0", md["alerts_processed_count"])
	assert.NotContains(t, md, "alerts_processed")
}
