package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/blob"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/config"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/db"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events/bus"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/identity"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/jobs"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/metrics"
	notificationservice "github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/notifications/service"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/reportstore"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/roster"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/stats"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/tasks"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/vcs"
)

// services is the wired application graph shared by every command.
type services struct {
	cfg      *config.Config
	log      *logger.Logger
	bus      bus.EventBus
	metrics  *metrics.Metrics
	roster   *roster.FileSource
	resolver *identity.Resolver
	store    *reportstore.Store
	tasks    *tasks.Manager
	notifier *notificationservice.Service
	reports  *jobs.ReportService

	cleanups []func() error
}

func loadConfigAndLogger() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadWithPath(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)
	return cfg, log, nil
}

func provideBlobStore(cfg *config.Config, log *logger.Logger) (blob.Store, error) {
	driver := strings.ToLower(cfg.Database.Driver)
	if driver == "fs" {
		store, err := blob.NewFSStore(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		log.Info("report storage initialized", zap.String("driver", driver), zap.String("path", cfg.Database.Path))
		return store, nil
	}

	conn, err := db.Open(db.Options{
		Driver:   driver,
		Path:     cfg.Database.Path,
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	store, err := blob.NewSQLStore(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Info("report storage initialized", zap.String("driver", driver))
	return store, nil
}

func provideVCSClient(cfg *config.Config, log *logger.Logger, mock bool) (vcs.Client, error) {
	if mock {
		log.Warn("using mock VCS client; reports will contain no activity")
		return vcs.NewMockClient(), nil
	}
	if cfg.GitHub.Token == "" {
		log.Warn("github token not set; unauthenticated requests are heavily rate limited")
	}
	client, err := vcs.NewGitHubClient(vcs.GitHubOptions{
		Token:   cfg.GitHub.Token,
		BaseURL: cfg.GitHub.BaseURL,
		Timeout: cfg.GitHub.RequestTimeoutDuration(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create github client: %w", err)
	}
	return client, nil
}

func repositories(cfg *config.Config) []stats.Repository {
	repos := make([]stats.Repository, 0, len(cfg.GitHub.Repositories))
	for _, r := range cfg.GitHub.Repositories {
		repos = append(repos, stats.Repository{Owner: r.Owner, Name: r.Name, Enabled: r.Enabled})
	}
	return repos
}

func provideServices(cfg *config.Config, log *logger.Logger, mockVCS bool) (*services, error) {
	s := &services{cfg: cfg, log: log, metrics: metrics.New()}

	eventBus, closeBus, err := events.Provide(cfg, log)
	if err != nil {
		return nil, err
	}
	s.bus = eventBus
	s.cleanups = append(s.cleanups, closeBus)

	blobs, err := provideBlobStore(cfg, log)
	if err != nil {
		s.close()
		return nil, err
	}
	s.cleanups = append(s.cleanups, blobs.Close)

	client, err := provideVCSClient(cfg, log, mockVCS)
	if err != nil {
		s.close()
		return nil, err
	}

	s.roster = roster.NewFileSource(cfg.Roster.Path)
	s.resolver = identity.NewResolver(cfg.GitHub.OrgDomains...)
	s.store = reportstore.New(blobs, log,
		reportstore.WithEventBus(eventBus),
		reportstore.WithMetrics(s.metrics))
	s.tasks = tasks.NewManager(log,
		tasks.WithEventBus(eventBus),
		tasks.WithMetrics(s.metrics))

	s.notifier, err = notificationservice.FromConfig(cfg.Notifications, log,
		notificationservice.WithMetrics(s.metrics))
	if err != nil {
		s.close()
		return nil, err
	}

	aggregator := stats.NewAggregator(client, s.resolver, log,
		stats.WithRepositoryDelay(cfg.Reports.RepositoryDelay()),
		stats.WithMetrics(s.metrics))
	s.reports = jobs.NewReportService(aggregator, s.roster, repositories(cfg),
		s.store, s.tasks, s.notifier, log,
		jobs.WithFreshness(cfg.Reports.FreshnessWindow()),
		jobs.WithLocation(cfg.Reports.Location()))
	return s, nil
}

// shutdownTasks cancels running tasks and waits for them within ctx.
func (s *services) shutdownTasks(ctx context.Context) {
	if err := s.tasks.Shutdown(ctx); err != nil {
		s.log.Warn("tasks did not stop in time", zap.Error(err))
	}
}

func (s *services) close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		if err := s.cleanups[i](); err != nil {
			s.log.Warn("cleanup failed", zap.Error(err))
		}
	}
	s.cleanups = nil
}
