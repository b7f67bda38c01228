package alertsink

import (
	"context"
	"log/slog"
	"time"

	"github.com/upswyng/alert-worker/internal/domain/model"
)

// LogNotifier records each alert in the structured log. It stands in for a
// push transport in development and keeps an audit line in production.
type LogNotifier struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "alert_sink", "sink", "log"), now: time.Now}
}

// Notify logs alert at info level.
func (n *LogNotifier) Notify(ctx context.Context, alert *model.Alert) error {
	ev := NewEvent(alert, n.now())
	n.logger.InfoContext(ctx, "alert delivered",
		slog.String("alert_id", ev.ID),
		slog.String("title", ev.Title),
		slog.String("category", ev.Category),
		slog.Time("start", ev.Start),
		slog.Bool("is_cancelled", ev.IsCancelled),
	)
	return nil
}
