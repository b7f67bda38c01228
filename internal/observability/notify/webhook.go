package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response is echoed into errors.
const maxErrorBody = 2048

// WebhookConfig configures a WebhookPoster.
type WebhookConfig struct {
	// Name labels errors, e.g. "slack".
	Name       string
	URL        string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// WebhookPoster POSTs JSON bodies with linear-backoff retries.
type WebhookPoster struct {
	name    string
	url     string
	retries int
	client  *http.Client
}

// NewWebhookPoster builds a poster. URL is required.
func NewWebhookPoster(cfg WebhookConfig) (*WebhookPoster, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("%s url is required", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &WebhookPoster{
		name:    cfg.Name,
		url:     url,
		retries: max(cfg.RetryLimit, 0),
		client:  hc,
	}, nil
}

// Post sends body, retrying failed attempts up to the retry limit.
func (p *WebhookPoster) Post(ctx context.Context, body []byte) error {
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * 200 * time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(lastErr, ctx.Err())
			case <-timer.C:
			}
		}
		if lastErr = p.once(ctx, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (p *WebhookPoster) once(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return fmt.Errorf("drain %s response: %w", p.name, err)
		}
		return nil
	}
	msg, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("read %s error response: %w", p.name, err)
	}
	return fmt.Errorf("%s webhook %s: %s", p.name, resp.Status, strings.TrimSpace(string(msg)))
}
