package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upswyng/alert-worker/internal/domain/model"
	"github.com/upswyng/alert-worker/internal/mocks"
	"go.uber.org/mock/gomock"
)

func TestNewAlertService(t *testing.T) {
	_, err := NewAlertService(AlertServiceOptions{})
	require.Error(t, err)

	assert.Panics(t, func() { MustNewAlertService(AlertServiceOptions{}) })
}

func TestAlertService_Create(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAlertRepository(ctrl)
	svc := MustNewAlertService(AlertServiceOptions{Repo: repo})
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	req := &model.CreateAlertRequest{Title: "Cold weather shelter open", Start: &start}
	repo.EXPECT().Create(ctx, req).Return(&model.Alert{ID: "a1", Title: req.Title, Start: &start}, nil)

	alert, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "a1", alert.ID)

	_, err = svc.Create(ctx, nil)
	require.Error(t, err)

	repo.EXPECT().Create(ctx, req).Return(nil, errors.New("title is required"))
	_, err = svc.Create(ctx, req)
	require.ErrorContains(t, err, "create alert: title is required")
}

func TestAlertService_GetByID(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAlertRepository(ctrl)
	svc := MustNewAlertService(AlertServiceOptions{Repo: repo})
	ctx := context.Background()

	_, err := svc.GetByID(ctx, "  ")
	require.Error(t, err)

	repo.EXPECT().GetByID(ctx, "a1").Return(&model.Alert{ID: "a1"}, nil)
	alert, err := svc.GetByID(ctx, " a1 ")
	require.NoError(t, err)
	assert.Equal(t, "a1", alert.ID)
}

func TestAlertService_ListNormalizesPagination(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAlertRepository(ctrl)
	svc := MustNewAlertService(AlertServiceOptions{Repo: repo})
	ctx := context.Background()

	repo.EXPECT().List(ctx, &model.AlertListOptions{Unprocessed: true, Limit: 50}).Return([]*model.Alert{{ID: "a1"}}, nil)
	alerts, err := svc.List(ctx, &model.AlertListOptions{Unprocessed: true})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	repo.EXPECT().List(ctx, &model.AlertListOptions{Limit: 50}).Return(nil, errors.New("down"))
	_, err = svc.List(ctx, nil)
	require.ErrorContains(t, err, "list alerts")
}
