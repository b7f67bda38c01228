// Package mocks provides gomock implementations of the alert worker's ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Alert check collaborators from internal/domain/alertcheck.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=alert_store_mock.go -mock_names=Store=MockAlertStore github.com/upswyng/alert-worker/internal/domain/alertcheck Store
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=notifier_mock.go github.com/upswyng/alert-worker/internal/domain/alertcheck Notifier

// Repository ports from internal/core.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/upswyng/alert-worker/internal/core JobRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_result_repository_mock.go github.com/upswyng/alert-worker/internal/core JobResultRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=alert_repository_mock.go github.com/upswyng/alert-worker/internal/core AlertRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/upswyng/alert-worker/internal/core ReaperRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_introspector_mock.go github.com/upswyng/alert-worker/internal/core JobIntrospector
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=progress_publisher_mock.go github.com/upswyng/alert-worker/internal/core ProgressPublisher
