package alertsink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/upswyng/alert-worker/internal/domain/model"
	"github.com/upswyng/alert-worker/internal/observability/notify/slack"
)

// TextPoster posts a preformatted message.
type TextPoster interface {
	PostText(ctx context.Context, text string) error
}

// SlackNotifier posts a short message per alert.
type SlackNotifier struct {
	poster TextPoster
}

// NewSlackNotifier constructs a SlackNotifier.
func NewSlackNotifier(poster TextPoster) (*SlackNotifier, error) {
	if poster == nil {
		return nil, errors.New("slack poster is required")
	}
	return &SlackNotifier{poster: poster}, nil
}

// Notify posts alert.
func (n *SlackNotifier) Notify(ctx context.Context, alert *model.Alert) error {
	return n.poster.PostText(ctx, FormatAlert(alert))
}

// FormatAlert renders alert as Slack mrkdwn.
func FormatAlert(alert *model.Alert) string {
	var b strings.Builder
	b.WriteString("*New alert*")
	if alert.IsCancelled {
		b.WriteString(" (cancelled)")
	}
	fmt.Fprintf(&b, ": %s", slack.Escape(alert.Title))
	if alert.Category != "" {
		fmt.Fprintf(&b, "\n• *Category*: %s", slack.Escape(alert.Category))
	}
	if alert.Start != nil {
		fmt.Fprintf(&b, "\n• *Starts*: %s", alert.Start.UTC().Format(time.RFC3339))
	}
	if alert.End != nil {
		fmt.Fprintf(&b, "\n• *Ends*: %s", alert.End.UTC().Format(time.RFC3339))
	}
	if d := strings.TrimSpace(alert.DetailExplanation); d != "" {
		fmt.Fprintf(&b, "\n>%s", slack.Escape(d))
	}
	fmt.Fprintf(&b, "\n• *ID*: `%s`", alert.ID)
	return b.String()
}
