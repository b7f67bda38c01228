package testutil

import (
	"encoding/json"
	"time"

	"github.com/upswyng/alert-worker/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building job requests in tests.
type JobRequestBuilder struct {
	request *model.CreateJobRequest
}

// NewJobRequest creates a builder for a check_new_alerts job.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		request: &model.CreateJobRequest{
			Kind:       model.JobKindCheckNewAlerts,
			Payload:    json.RawMessage(`{}`),
			MaxRetries: 3,
		},
	}
}

// WithPriority sets the job priority.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.request.Priority = priority
	return b
}

// WithMetadataString sets the job metadata from a JSON string.
func (b *JobRequestBuilder) WithMetadataString(metadata string) *JobRequestBuilder {
	b.request.Metadata = json.RawMessage(metadata)
	return b
}

// WithScheduledAt sets when the job becomes reservable.
func (b *JobRequestBuilder) WithScheduledAt(scheduledAt time.Time) *JobRequestBuilder {
	b.request.ScheduledAt = &scheduledAt
	return b
}

// WithMaxRetries sets the retry budget.
func (b *JobRequestBuilder) WithMaxRetries(maxRetries int) *JobRequestBuilder {
	b.request.MaxRetries = maxRetries
	return b
}

// Build returns the built job request.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.request
}

// AlertRequestBuilder builds alert creation requests for tests.
type AlertRequestBuilder struct {
	request *model.CreateAlertRequest
}

// NewAlertRequest creates a builder for an alert that started at start.
func NewAlertRequest(title string, start time.Time) *AlertRequestBuilder {
	return &AlertRequestBuilder{
		request: &model.CreateAlertRequest{
			Title:    title,
			Category: string(model.AlertCategoryGeneral),
			Start:    &start,
		},
	}
}

// WithCategory sets the alert category.
func (b *AlertRequestBuilder) WithCategory(c model.AlertCategory) *AlertRequestBuilder {
	b.request.Category = string(c)
	return b
}

// WithEnd sets the end of the alert window.
func (b *AlertRequestBuilder) WithEnd(end time.Time) *AlertRequestBuilder {
	b.request.End = &end
	return b
}

// WithDetail sets the long-form explanation.
func (b *AlertRequestBuilder) WithDetail(detail string) *AlertRequestBuilder {
	b.request.DetailExplanation = detail
	return b
}

// Build returns the built alert request.
func (b *AlertRequestBuilder) Build() *model.CreateAlertRequest {
	return b.request
}
