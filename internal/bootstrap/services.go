package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/upswyng/alert-worker/config"
	"github.com/upswyng/alert-worker/internal/adapters/alertsink"
	"github.com/upswyng/alert-worker/internal/core"
	"github.com/upswyng/alert-worker/internal/data"
	"github.com/upswyng/alert-worker/internal/observability/notify/pagerduty"
	"github.com/upswyng/alert-worker/internal/observability/notify/slack"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
	"github.com/upswyng/alert-worker/internal/service"
	"github.com/upswyng/alert-worker/internal/service/failurenotifier"
	"golang.org/x/sync/errgroup"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Alerts        *service.AlertService
	AlertCheck    *service.AlertCheckHandler // nil unless the runner is enabled
	JobResults    core.JobResultRepository
	Progress      core.ProgressPublisher // nil unless progress publishing is enabled
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// Metrics returns the sink to hand to services, or nil when metrics are off.
//
//nolint:ireturn // callers take the statsd.Sink port
func (o ObservabilityContainer) Metrics() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	NATS        *nats.Conn
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	JobRepo       *data.JobRepo
	AlertRepo     *data.AlertRepo
	JobResultRepo *data.JobResultRepo
	ProgressRepo  *data.RedisProgressRepo
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Prefix,
			GlobalTags: cfg.Metrics.GlobalTags(),
			Logger:     obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps, logger *slog.Logger) *serviceRepositories {
	repos := &serviceRepositories{
		JobRepo:       data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger}),
		AlertRepo:     data.NewAlertRepo(deps.DB, data.AlertRepoOptions{}),
		JobResultRepo: data.NewJobResultRepo(deps.DB),
	}
	if deps.RedisClient != nil && deps.Config.NeedsRedis() {
		repos.ProgressRepo = data.NewRedisProgressRepo(deps.RedisClient, data.RedisProgressOptions{
			TTL: deps.Config.AlertCheckRunner.ProgressTTL,
		})
	}
	return repos
}

type notifierDeps struct {
	Config    config.DeliveryConfig
	Publisher alertsink.Publisher
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// buildNotifier assembles the delivery fan-out for newly processed alerts.
func buildNotifier(deps notifierDeps) (*alertsink.Fanout, error) {
	cfg := deps.Config
	var sinks []alertsink.Named

	if cfg.LogEnabled {
		sinks = append(sinks, alertsink.Named{Name: "log", Notifier: alertsink.NewLogNotifier(deps.Logger)})
	}

	if cfg.NATSEnabled {
		if deps.Publisher == nil {
			return nil, errors.New("nats delivery enabled without a nats connection")
		}
		projector, err := alertsink.NewProjector(cfg.Projection)
		if err != nil {
			return nil, err
		}
		n, err := alertsink.NewNATSNotifier(alertsink.NATSNotifierOptions{
			Publisher: deps.Publisher,
			Subject:   cfg.NATSSubject,
			Projector: projector,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, alertsink.Named{Name: "nats", Notifier: n})
	}

	if cfg.SlackEnabled() {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.SlackWebhookURL,
			Channel:    cfg.SlackChannel,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("slack delivery: %w", err)
		}
		n, err := alertsink.NewSlackNotifier(client)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, alertsink.Named{Name: "slack", Notifier: n})
	}

	fanout := alertsink.NewFanout(alertsink.FanoutOptions{
		Sinks:   sinks,
		Timeout: cfg.Timeout,
		Logger:  deps.Logger,
		Metrics: deps.Metrics,
	})
	if fanout.Len() == 0 {
		return nil, errors.New("no alert delivery sink enabled")
	}
	return fanout, nil
}

// NewServices wires repositories, observability and domain services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observability := buildObservability(logger, deps.Config.Observability)
	repos := buildRepositories(deps, logger)

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:            repos.JobRepo,
		DefaultLease:    deps.Config.AlertCheckRunner.JobLease,
		Logger:          logger,
		FailureNotifier: observability.FailureNotifier,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("job service: %w", err)
	}

	container := ServiceContainer{
		Jobs:          jobs,
		Alerts:        service.MustNewAlertService(service.AlertServiceOptions{Repo: repos.AlertRepo, Logger: logger}),
		JobResults:    repos.JobResultRepo,
		Observability: observability,
	}
	if repos.ProgressRepo != nil {
		container.Progress = repos.ProgressRepo
	}

	if deps.Config.IsAlertCheckRunnerEnabled() {
		nd := notifierDeps{Config: deps.Config.Delivery, Logger: logger, Metrics: observability.Metrics()}
		if deps.NATS != nil {
			nd.Publisher = deps.NATS
		}
		notifier, err := buildNotifier(nd)
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("alert delivery: %w", err)
		}
		handler, err := service.NewAlertCheckHandler(service.AlertCheckHandlerOptions{
			Store:    repos.AlertRepo,
			Notifier: notifier,
			Clock:    data.RealTimeProvider{},
			Logger:   logger,
			Metrics:  observability.Metrics(),
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("alert check handler: %w", err)
		}
		container.AlertCheck = handler
	}

	return container, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func buildBackgroundServices(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []backgroundService {
	app := cfg.Config
	svcs := cfg.Services
	metrics := svcs.Observability.Metrics()

	return []backgroundService{
		{
			mode: config.ServiceModeAlertCheckRunner,
			name: "alert check runner",
			start: func(ctx context.Context) error {
				return RunAlertCheckRunner(ctx, AlertCheckRunnerConfig{
					Jobs:        svcs.Jobs,
					Handler:     svcs.AlertCheck,
					JobResults:  svcs.JobResults,
					Progress:    svcs.Progress,
					Logger:      logger,
					Metrics:     metrics,
					Lease:       app.AlertCheckRunner.JobLease,
					Concurrency: app.AlertCheckRunner.Concurrency,
				})
			},
		},
		{
			mode: config.ServiceModeScheduler,
			name: "scheduler",
			start: func(ctx context.Context) error {
				return RunScheduler(ctx, SchedulerConfig{
					DB:      cfg.DB,
					Logger:  logger,
					Config:  app.Scheduler,
					Metrics: metrics,
				})
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "reaper",
			start: func(ctx context.Context) error {
				return RunReaper(ctx, ReaperConfig{
					DB:      cfg.DB,
					Logger:  logger,
					Config:  app.Reaper,
					Metrics: metrics,
				})
			},
		},
	}
}

// RunServices runs every enabled background service until ctx is cancelled
// or one of them fails, which stops the rest.
func RunServices(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range buildBackgroundServices(cfg, logger) {
		if !enabled[svc.mode] {
			continue
		}
		g.Go(func() error {
			logger.InfoContext(gctx, "background service started", "service", svc.name, "mode", svc.mode)
			err := svc.start(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorContext(gctx, "background service failed", "service", svc.name, "error", err)
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			logger.Info(svc.name + " stopped")
			return nil
		})
	}

	err = g.Wait()
	if cfg.Services.Jobs != nil {
		cfg.Services.Jobs.StopAllListeners()
	}
	return err
}

// RunServicesWithShutdown runs the enabled services until SIGINT or SIGTERM.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := RunServices(ctx, cfg)
	if ctx.Err() != nil && cfg != nil && cfg.Logger != nil {
		cfg.Logger.Info("shutting down services")
	}
	return err
}
