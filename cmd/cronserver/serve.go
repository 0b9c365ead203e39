package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/api"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/constants"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/tracing"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/jobs"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/roster"
)

// previewSweepInterval is how often expired previews are removed.
const previewSweepInterval = time.Hour

func newServeCommand() *cobra.Command {
	var mockVCS bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the report scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), mockVCS)
		},
	}
	cmd.Flags().BoolVar(&mockVCS, "mock", false, "use an empty in-memory VCS client instead of GitHub")
	return cmd
}

func runServe(parent context.Context, mockVCS bool) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := provideServices(cfg, log, mockVCS)
	if err != nil {
		return err
	}
	defer svc.close()

	members, err := svc.roster.Members(ctx)
	if err != nil {
		// the server still starts so the roster can be fixed and reloaded
		log.Error("failed to load roster", zap.String("path", cfg.Roster.Path), zap.Error(err))
	} else {
		api.ApplyRoster(ctx, svc.resolver, svc.bus, members, log)
	}

	var watcher *roster.Watcher
	if cfg.Roster.Watch {
		watcher = roster.NewWatcher(svc.roster, func(ctx context.Context, members []roster.TeamMember) {
			api.ApplyRoster(ctx, svc.resolver, svc.bus, members, log)
		}, log)
		if err := watcher.Start(ctx); err != nil {
			log.Warn("roster watch disabled", zap.Error(err))
			watcher = nil
		}
	}

	sub, err := svc.notifier.Watch(svc.bus)
	if err != nil {
		return fmt.Errorf("subscribe to archived reports: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	svc.tasks.StartJanitor(ctx, constants.TaskCleanupInterval, cfg.Reports.TaskRetention())

	scheduler := jobs.NewScheduler(svc.reports, cfg.Reports.Location(), log)
	if err := scheduler.AddSchedules(cfg.Schedules); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Dependencies{
		Reports:   svc.reports,
		Tasks:     svc.tasks,
		Store:     svc.store,
		Roster:    svc.roster,
		Resolver:  svc.resolver,
		Scheduler: scheduler,
		Bus:       svc.bus,
		Metrics:   svc.metrics,
	}, log)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sweepPreviews(gctx, svc)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown", zap.Error(err))
		}
		if err := scheduler.Stop(shutdownCtx); err != nil {
			log.Warn("scheduler shutdown", zap.Error(err))
		}
		svc.shutdownTasks(shutdownCtx)
		if watcher != nil {
			watcher.Stop()
		}
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// sweepPreviews removes previews older than the freshness window until ctx ends.
func sweepPreviews(ctx context.Context, svc *services) {
	ticker := time.NewTicker(previewSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.store.CleanupExpired(ctx, svc.cfg.Reports.FreshnessWindow())
			if err != nil {
				svc.log.Warn("preview cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				svc.log.Info("expired previews removed", zap.Int("count", n))
			}
		}
	}
}
