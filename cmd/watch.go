package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docsync/internal/daemon"
	"docsync/internal/db"
	"docsync/internal/logger"
	"docsync/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the config dir and keep documentation in sync",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	o, err := newOrchestrator()
	if err != nil {
		return err
	}

	var history daemon.HistorySource
	if db.DB != nil {
		history = repository.NewHistoryRepository()
	}
	srv := daemon.NewServer(o, history, cfg.DaemonPort)
	srv.Start()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- o.Watch(ctx)
	}()

	logger.Log.Info("docsync daemon started",
		zap.String("config_dir", cfg.Path(cfg.ConfigDir)),
		zap.Int("port", cfg.DaemonPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	case runErr = <-watchErr:
		watchErr = nil
		if runErr != nil {
			logger.Log.Error("watch loop stopped", zap.Error(runErr))
		}
	}

	cancel()
	if watchErr != nil {
		if err := <-watchErr; err != nil {
			runErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
