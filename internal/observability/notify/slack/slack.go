// Package slack posts worker notifications to a Slack incoming webhook.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/upswyng/alert-worker/internal/observability/notify"
)

// Config captures the Slack webhook settings.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
}

// Client posts messages to one Slack webhook.
type Client struct {
	poster   *notify.WebhookPoster
	channel  string
	username string
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack client. WebhookURL is required.
func NewClient(cfg Config) (*Client, error) {
	poster, err := notify.NewWebhookPoster(notify.WebhookConfig{
		Name:       "slack",
		URL:        cfg.WebhookURL,
		Timeout:    cfg.Timeout,
		RetryLimit: cfg.RetryLimit,
	})
	if err != nil {
		return nil, err
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "alert-worker"
	}
	return &Client{poster: poster, channel: strings.TrimSpace(cfg.Channel), username: username}, nil
}

// PostText sends a plain mrkdwn message.
func (c *Client) PostText(ctx context.Context, text string) error {
	msg := map[string]any{"text": text, "username": c.username}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return c.poster.Post(ctx, body)
}

// SendJobFailure posts a formatted job failure.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	return c.PostText(ctx, FormatJobFailure(payload))
}

// FormatJobFailure renders payload as Slack mrkdwn.
func FormatJobFailure(p notify.JobFailurePayload) string {
	var b strings.Builder
	if p.Final {
		b.WriteString("*Job failed*")
	} else {
		b.WriteString("*Job attempt failed, will retry*")
	}
	if p.JobID != "" {
		fmt.Fprintf(&b, " `%s`", p.JobID)
	}
	if p.JobKind != "" {
		fmt.Fprintf(&b, " (%s)", p.JobKind)
	}
	b.WriteByte('\n')

	severity := p.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}
	field(&b, "Severity", severity)
	field(&b, "Error class", p.ErrorClass)
	field(&b, "Error", Escape(p.Error))

	if len(p.Metadata) > 0 {
		keys := make([]string, 0, len(p.Metadata))
		for k := range p.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			field(&b, k, Escape(p.Metadata[k]))
		}
	}

	at := p.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	field(&b, "Timestamp", at.UTC().Format(time.RFC3339))
	return strings.TrimRight(b.String(), "\n")
}

// Escape neutralises Slack control characters in user-provided text.
func Escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

func field(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "• %s: %s\n", label, value)
}
