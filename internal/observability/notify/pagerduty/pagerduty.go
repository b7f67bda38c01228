// Package pagerduty raises incidents for final job failures via the Events API v2.
package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/upswyng/alert-worker/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures the PagerDuty sink settings.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	// Endpoint overrides APIEndpoint.
	Endpoint   string
	Timeout    time.Duration
	RetryLimit int
}

// Client triggers PagerDuty events. Retryable attempt failures are dropped so
// only a job that has exhausted its retries pages someone.
type Client struct {
	poster     *notify.WebhookPoster
	routingKey string
	source     string
	component  string
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a PagerDuty client. RoutingKey is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = APIEndpoint
	}
	poster, err := notify.NewWebhookPoster(notify.WebhookConfig{
		Name:       "pagerduty",
		URL:        endpoint,
		Timeout:    cfg.Timeout,
		RetryLimit: cfg.RetryLimit,
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		poster:     poster,
		routingKey: key,
		source:     orDefault(cfg.Source, "alert-worker"),
		component:  orDefault(cfg.Component, "alert-worker"),
	}, nil
}

// SendJobFailure triggers an event for a final failure.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	if !payload.Final {
		return nil
	}
	body, err := json.Marshal(c.event(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}
	return c.poster.Post(ctx, body)
}

type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string         `json:"summary"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Component     string         `json:"component"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details"`
}

func (c *Client) event(p notify.JobFailurePayload) event {
	at := p.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	details := map[string]any{
		"job_id":      p.JobID,
		"job_kind":    p.JobKind,
		"error":       p.Error,
		"error_class": p.ErrorClass,
	}
	for k, v := range p.Metadata {
		if _, taken := details[k]; !taken {
			details[k] = v
		}
	}
	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		DedupKey:    strings.Trim(p.JobKind+":"+p.JobID, ":"),
		Payload: eventPayload{
			Summary:       fmt.Sprintf("Job %s (%s) failed", orDefault(p.JobID, "unknown"), orDefault(p.JobKind, "unknown")),
			Severity:      orDefault(strings.ToLower(p.Severity), notify.SeverityCritical),
			Source:        c.source,
			Component:     c.component,
			Timestamp:     at.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}
