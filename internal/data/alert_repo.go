package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/upswyng/alert-worker/internal/data/pgxutil"
	"github.com/upswyng/alert-worker/internal/domain/model"
	apperrors "github.com/upswyng/alert-worker/internal/errors"
)

// AlertRepoOptions configures an AlertRepo.
type AlertRepoOptions struct {
	TimeProvider TimeProvider
}

// AlertRepo persists alerts and serves the active-alert query for the alert check.
type AlertRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAlertRepo creates a new AlertRepo instance with the given database connection.
func NewAlertRepo(db *sql.DB, opts AlertRepoOptions) *AlertRepo {
	tp := opts.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &AlertRepo{DB: db, timeProvider: tp}
}

const alertColumns = `id, title, category, color, icon, detail_explanation, start_at, end_at, is_cancelled, was_processed, created_at, updated_at`

const (
	defaultAlertListLimit = 50
	maxAlertListLimit     = 1000
)

// ActiveAlerts returns every alert that has started at or before now, processed
// or not. Rows stored without a start are returned as well so the caller can
// reject them instead of silently skipping them.
func (r *AlertRepo) ActiveAlerts(ctx context.Context, now time.Time) ([]*model.Alert, error) {
	query := `SELECT ` + alertColumns + `
		FROM alerts
		WHERE start_at IS NULL OR start_at <= $1
		ORDER BY created_at, id`

	alerts, err := r.collect(ctx, query, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", apperrors.MapDBError(err))
	}
	return alerts, nil
}

// Save persists the processed flag of alert and refreshes alert.UpdatedAt from
// the stored row. Other columns are left untouched so edits made since the
// alert was loaded survive.
func (r *AlertRepo) Save(ctx context.Context, alert *model.Alert) error {
	if alert == nil || alert.ID == "" {
		return ErrAlertIDRequired
	}
	if _, err := uuid.Parse(alert.ID); err != nil {
		return ErrAlertNotFound
	}

	err := r.DB.QueryRowContext(ctx, `
		UPDATE alerts
		SET was_processed = $2,
		    updated_at = $3
		WHERE id = $1
		RETURNING updated_at`,
		alert.ID, alert.WasProcessed, r.timeProvider.Now(),
	).Scan(&alert.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAlertNotFound
	}
	if err != nil {
		return fmt.Errorf("save alert %s: %w", alert.ID, apperrors.MapDBError(err))
	}
	return nil
}

// Create inserts a new, unprocessed alert.
func (r *AlertRepo) Create(ctx context.Context, req *model.CreateAlertRequest) (*model.Alert, error) {
	if req == nil {
		return nil, errors.New("create alert request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid alert")
	}

	now := r.timeProvider.Now()
	query := `
		INSERT INTO alerts (title, category, color, icon, detail_explanation, start_at, end_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING ` + alertColumns

	alerts, err := r.collect(ctx, query,
		req.Title, req.Category, req.Color, req.Icon, req.DetailExplanation,
		req.Start.UTC(), req.End, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", apperrors.MapDBError(err))
	}
	if len(alerts) != 1 {
		return nil, fmt.Errorf("create alert: expected 1 row, got %d", len(alerts))
	}
	return alerts[0], nil
}

// GetByID retrieves an alert by its ID.
func (r *AlertRepo) GetByID(ctx context.Context, id string) (*model.Alert, error) {
	if id == "" {
		return nil, ErrAlertIDRequired
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrAlertNotFound
	}

	alerts, err := r.collect(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", apperrors.MapDBError(err))
	}
	if len(alerts) == 0 {
		return nil, ErrAlertNotFound
	}
	return alerts[0], nil
}

// List returns alerts newest start first.
func (r *AlertRepo) List(ctx context.Context, opts *model.AlertListOptions) ([]*model.Alert, error) {
	if opts == nil {
		opts = &model.AlertListOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultAlertListLimit
	}
	limit = min(limit, maxAlertListLimit)
	offset := max(opts.Offset, 0)

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if opts.Unprocessed {
		query += ` WHERE NOT was_processed`
	}
	query += ` ORDER BY start_at DESC NULLS LAST, id LIMIT $1 OFFSET $2`

	alerts, err := r.collect(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", apperrors.MapDBError(err))
	}
	return alerts, nil
}

func (r *AlertRepo) collect(ctx context.Context, query string, args ...any) ([]*model.Alert, error) {
	var alerts []*model.Alert
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		alerts, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Alert])
		return err
	})
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []*model.Alert{}
	}
	return alerts, nil
}
