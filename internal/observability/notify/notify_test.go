package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulti_JoinsErrors(t *testing.T) {
	var calls int
	ok := SinkFunc(func(context.Context, JobFailurePayload) error { calls++; return nil })
	bad := SinkFunc(func(context.Context, JobFailurePayload) error { calls++; return errors.New("down") })

	err := Multi{ok, nil, bad, ok}.SendJobFailure(context.Background(), JobFailurePayload{JobID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, 3, calls)

	assert.NoError(t, Multi{}.SendJobFailure(context.Background(), JobFailurePayload{}))
	var nilFunc SinkFunc
	assert.NoError(t, nilFunc.SendJobFailure(context.Background(), JobFailurePayload{}))
}

func TestNewWebhookPoster_RequiresURL(t *testing.T) {
	_, err := NewWebhookPoster(WebhookConfig{Name: "slack"})
	assert.EqualError(t, err, "slack url is required")
}

func TestWebhookPoster_RetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"text":"hi"}`, string(body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if hits.Add(1) == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, err := NewWebhookPoster(WebhookConfig{Name: "test", URL: srv.URL, RetryLimit: 2, Timeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, p.Post(context.Background(), []byte(`{"text":"hi"}`)))
	assert.Equal(t, int32(2), hits.Load())
}

func TestWebhookPoster_ReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	p, err := NewWebhookPoster(WebhookConfig{Name: "test", URL: srv.URL})
	require.NoError(t, err)
	err = p.Post(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid_payload")
}

func TestWebhookPoster_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := NewWebhookPoster(WebhookConfig{Name: "test", URL: srv.URL, RetryLimit: 5})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = p.Post(ctx, []byte(`{}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
