package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upswyng/alert-worker/internal/domain/model"
)

type stubWaiter struct {
	calls chan model.JobKind
	err   error
}

func (s *stubWaiter) WaitForNotification(ctx context.Context, kind model.JobKind) error {
	select {
	case s.calls <- kind:
	default:
	}
	if s.err != nil {
		return s.err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil
	}
}

func TestNewWakeupsRequiresWaiter(t *testing.T) {
	w, err := NewWakeups(WakeupOptions{})
	require.ErrorIs(t, err, ErrWaiterRequired)
	assert.Nil(t, w)
}

func TestWakeups_SubscriberIsSignalled(t *testing.T) {
	waiter := &stubWaiter{calls: make(chan model.JobKind, 4)}
	w, err := NewWakeups(WakeupOptions{Waiter: waiter})
	require.NoError(t, err)
	defer w.StopAll()

	unsub, ch := w.Subscribe(model.JobKindCheckNewAlerts)
	defer unsub()

	select {
	case kind := <-waiter.calls:
		assert.Equal(t, model.JobKindCheckNewAlerts, kind)
	case <-time.After(time.Second):
		t.Fatal("waiter was not invoked")
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no wake-up delivered")
	}
}

func TestWakeups_UnsubscribeClosesChannel(t *testing.T) {
	w, err := NewWakeups(WakeupOptions{Waiter: &stubWaiter{calls: make(chan model.JobKind, 1)}})
	require.NoError(t, err)

	unsub, ch := w.Subscribe(model.JobKindCheckNewAlerts)
	unsub()
	unsub()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestWakeups_WaitErrorsStillSignal(t *testing.T) {
	waiter := &stubWaiter{calls: make(chan model.JobKind, 1), err: errors.New("conn reset")}
	w, err := NewWakeups(WakeupOptions{Waiter: waiter, Backoff: 5 * time.Millisecond})
	require.NoError(t, err)
	defer w.StopAll()

	_, ch := w.Subscribe(model.JobKindCheckNewAlerts)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a wake-up after a failed wait")
	}
}

func TestWakeups_StopAllClosesSubscribers(t *testing.T) {
	w, err := NewWakeups(WakeupOptions{Waiter: &stubWaiter{calls: make(chan model.JobKind, 1)}})
	require.NoError(t, err)

	unsub, ch := w.Subscribe(model.JobKindCheckNewAlerts)
	w.StopAll()
	unsub()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
