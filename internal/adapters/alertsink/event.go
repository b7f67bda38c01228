// Package alertsink delivers newly processed alerts to downstream consumers.
package alertsink

import (
	"time"

	"github.com/upswyng/alert-worker/internal/domain/model"
)

// Event is the wire form of a newly processed alert.
type Event struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Category          string     `json:"category"`
	Color             string     `json:"color,omitempty"`
	Icon              string     `json:"icon,omitempty"`
	DetailExplanation string     `json:"detail_explanation,omitempty"`
	Start             time.Time  `json:"start"`
	End               *time.Time `json:"end,omitempty"`
	IsCancelled       bool       `json:"is_cancelled"`
	ProcessedAt       time.Time  `json:"processed_at"`
}

// NewEvent builds the event for alert as processed at now.
func NewEvent(alert *model.Alert, now time.Time) Event {
	ev := Event{
		ID:                alert.ID,
		Title:             alert.Title,
		Category:          alert.Category,
		Color:             alert.Color,
		Icon:              alert.Icon,
		DetailExplanation: alert.DetailExplanation,
		IsCancelled:       alert.IsCancelled,
		ProcessedAt:       now.UTC(),
	}
	if alert.Start != nil {
		ev.Start = alert.Start.UTC()
	}
	if alert.End != nil {
		end := alert.End.UTC()
		ev.End = &end
	}
	return ev
}
