package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upswyng/alert-worker/internal/observability/notify"
)

type capture struct {
	mu       sync.Mutex
	payloads []notify.JobFailurePayload
}

func (c *capture) sink() notify.Sink {
	return notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.payloads = append(c.payloads, p)
		return nil
	})
}

func TestServiceNotifyJobFailure(t *testing.T) {
	var got capture
	svc := NewService(Options{
		Sinks: []SinkRegistration{{Name: "capture", Sink: got.sink()}},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{
		JobID:   "123",
		JobKind: "check_new_alerts",
	})

	require.Len(t, got.payloads, 1)
	assert.Equal(t, notify.SeverityCritical, got.payloads[0].Severity, "severity defaults to critical")
}

func TestServiceKeepsExplicitSeverity(t *testing.T) {
	var got capture
	svc := NewService(Options{Sinks: []SinkRegistration{{Sink: got.sink()}}})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "1", Severity: notify.SeverityWarning})

	require.Len(t, got.payloads, 1)
	assert.Equal(t, notify.SeverityWarning, got.payloads[0].Severity)
}

func TestServiceDisabled(t *testing.T) {
	assert.False(t, NewService(Options{}).Enabled())
	assert.False(t, NewService(Options{Sinks: []SinkRegistration{{Name: "nil"}}}).Enabled())

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
	nilSvc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{})
}

func TestServiceFailingSinkDoesNotBlockOthers(t *testing.T) {
	var got capture
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "fail",
				Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
					return errors.New("boom")
				}),
			},
			{Name: "capture", Sink: got.sink()},
		},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "123"})

	require.Len(t, got.payloads, 1)
	assert.Equal(t, "123", got.payloads[0].JobID)
}
