package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/upswyng/alert-worker/internal/core"
	"github.com/upswyng/alert-worker/internal/domain/model"
)

// AlertServiceOptions groups dependencies for AlertService.
type AlertServiceOptions struct {
	Repo   core.AlertRepository // Required: alert repository
	Logger *slog.Logger         // Optional: structured logger
}

// AlertService provides the operator-facing alert operations used by the
// admin CLI. The alert check itself talks to the repository directly.
type AlertService struct {
	repo   core.AlertRepository
	logger *slog.Logger
}

// NewAlertService constructs a new AlertService.
func NewAlertService(opts AlertServiceOptions) (*AlertService, error) {
	if opts.Repo == nil {
		return nil, errors.New("AlertRepository is required")
	}
	return &AlertService{
		repo:   opts.Repo,
		logger: resolveLogger(opts.Logger).With("component", "alert_service"),
	}, nil
}

// MustNewAlertService constructs a new AlertService and panics on error.
func MustNewAlertService(opts AlertServiceOptions) *AlertService {
	svc, err := NewAlertService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return svc
}

// Create stores a new unprocessed alert.
func (s *AlertService) Create(ctx context.Context, req *model.CreateAlertRequest) (*model.Alert, error) {
	if req == nil {
		return nil, errors.New("create alert request is required")
	}
	alert, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	s.logger.InfoContext(ctx, "alert created",
		"alert_id", alert.ID,
		"category", alert.Category,
		"start", alert.Start,
	)
	return alert, nil
}

// GetByID returns one alert.
func (s *AlertService) GetByID(ctx context.Context, id string) (*model.Alert, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("alert id is required")
	}
	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	return alert, nil
}

// List returns alerts, most recent start first.
func (s *AlertService) List(ctx context.Context, opts *model.AlertListOptions) ([]*model.Alert, error) {
	if opts == nil {
		opts = &model.AlertListOptions{}
	}
	p := normalizePagination(opts.Limit, opts.Offset)
	opts.Limit = p.Limit
	opts.Offset = p.Offset

	alerts, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
