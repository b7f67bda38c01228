//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Alert is a notice with a validity window. Start is a pointer so that rows
// missing it can be detected and rejected at the store boundary.
type Alert struct {
	ID                string     `json:"id"                           db:"id"`
	Title             string     `json:"title"                        db:"title"`
	Category          string     `json:"category"                     db:"category"`
	Color             string     `json:"color,omitempty"              db:"color"`
	Icon              string     `json:"icon,omitempty"               db:"icon"`
	DetailExplanation string     `json:"detail_explanation,omitempty" db:"detail_explanation"`
	Start             *time.Time `json:"start"                        db:"start_at"`
	End               *time.Time `json:"end,omitempty"                db:"end_at"`
	IsCancelled       bool       `json:"is_cancelled"                 db:"is_cancelled"`
	WasProcessed      bool       `json:"was_processed"                db:"was_processed"`
	CreatedAt         time.Time  `json:"created_at"                   db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"                   db:"updated_at"`
}

// ActiveAt reports whether the alert has started at or before t.
func (a *Alert) ActiveAt(t time.Time) bool {
	return a != nil && a.Start != nil && !a.Start.After(t)
}

// Ended reports whether the alert's window closed before t. Alerts without an
// end are open-ended.
func (a *Alert) Ended(t time.Time) bool {
	return a != nil && a.End != nil && a.End.Before(t)
}

// AlertCategory groups alerts for display downstream.
type AlertCategory string

const (
	AlertCategoryGeneral  AlertCategory = "general"
	AlertCategoryWeather  AlertCategory = "weather"
	AlertCategoryShelter  AlertCategory = "shelter"
	AlertCategoryHealth   AlertCategory = "health"
	AlertCategoryResource AlertCategory = "resource"
)

// Valid returns true if the category is one of the supported values.
func (c AlertCategory) Valid() bool {
	switch c {
	case AlertCategoryGeneral, AlertCategoryWeather, AlertCategoryShelter, AlertCategoryHealth, AlertCategoryResource:
		return true
	default:
		return false
	}
}

const maxAlertTitleLength = 255

// CreateAlertRequest represents a request to create a new alert.
type CreateAlertRequest struct {
	Title             string     `json:"title"`
	Category          string     `json:"category,omitempty"`
	Color             string     `json:"color,omitempty"`
	Icon              string     `json:"icon,omitempty"`
	DetailExplanation string     `json:"detail_explanation,omitempty"`
	Start             *time.Time `json:"start"`
	End               *time.Time `json:"end,omitempty"`
}

// Normalize trims string fields and applies the default category.
func (r *CreateAlertRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	r.Color = strings.TrimSpace(r.Color)
	r.Icon = strings.TrimSpace(r.Icon)
	r.DetailExplanation = strings.TrimSpace(r.DetailExplanation)
	if r.Category == "" {
		r.Category = string(AlertCategoryGeneral)
	}
}

// Validate validates the CreateAlertRequest fields.
func (r *CreateAlertRequest) Validate() error {
	if r.Title == "" {
		return errors.New("title is required")
	}
	if utf8.RuneCountInString(r.Title) > maxAlertTitleLength {
		return errors.New("title must be 255 characters or less")
	}
	if !AlertCategory(r.Category).Valid() {
		return errors.New("invalid category")
	}
	if r.Start == nil || r.Start.IsZero() {
		return errors.New("start is required")
	}
	if r.End != nil && r.End.Before(*r.Start) {
		return errors.New("end must not be before start")
	}
	return nil
}

// AlertListOptions filters alert listings.
type AlertListOptions struct {
	Unprocessed bool
	Limit       int
	Offset      int
}
