package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/constants"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/report"
)

func newReportCommand() *cobra.Command {
	var (
		send        bool
		force       bool
		mockVCS     bool
		destination string
	)
	cmd := &cobra.Command{
		Use:   "report <weekly|monthly>",
		Short: "Generate one report and print it, optionally sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := report.ParseKind(args[0])
			if err != nil {
				return err
			}
			return runReport(cmd, kind, force, send, mockVCS, destination)
		},
	}
	cmd.Flags().BoolVar(&send, "send", false, "deliver the report and archive it")
	cmd.Flags().BoolVar(&force, "force", false, "ignore a fresh cached preview")
	cmd.Flags().BoolVar(&mockVCS, "mock", false, "use an empty in-memory VCS client instead of GitHub")
	cmd.Flags().StringVar(&destination, "destination", "", "notification channel to send to")
	return cmd
}

func runReport(cmd *cobra.Command, kind report.Kind, force, send, mockVCS bool, destination string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	parent := cmd.Context()
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
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		svc.shutdownTasks(shutdownCtx)
	}()

	if send {
		if force {
			if _, err := svc.reports.Build(ctx, kind, true); err != nil {
				return err
			}
		}
		rec, err := svc.reports.Send(ctx, kind, destination)
		if err != nil {
			return err
		}
		log.Info("report sent", zap.String("report_id", rec.ID))
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rec.Content)
		return err
	}

	rec, err := svc.reports.Build(ctx, kind, force)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), rec.Content)
	return err
}
