package cmd

import (
	"fmt"
	"os"

	"docsync/internal/config"
	"docsync/internal/db"
	"docsync/internal/logger"
	"docsync/internal/orchestrator"
	"docsync/internal/repository"

	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	cfgFile string
	rootDir string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:          "docsync",
	Short:        "Keep generated documentation in sync with configuration files",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "init" {
			logger.Init(debug, true, nil)
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if rootDir != "" {
			cfg.Root = rootDir
		}

		var file *logger.FileOptions
		if cfg.LogsToFile() {
			file = &logger.FileOptions{
				Path:       cfg.Path(cfg.Notify.LogFile),
				MaxSizeMB:  cfg.Notify.MaxSizeMB,
				MaxBackups: cfg.Notify.MaxBackups,
			}
		}
		logger.Init(debug, cfg.LogsToConsole(), file)

		clientCmds := map[string]bool{
			"status": true, "stop": true, "history": true,
			"install": true, "uninstall": true,
		}
		if !clientCmds[cmd.Name()] {
			if err := db.Init(cfg.Path(cfg.DBPath)); err != nil {
				return err
			}
		}

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return db.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL(path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", cfg.DaemonPort, path)
}

func newOrchestrator() (*orchestrator.Orchestrator, error) {
	var history orchestrator.HistoryRecorder
	if db.DB != nil {
		history = repository.NewHistoryRepository()
	}
	return orchestrator.New(cfg, orchestrator.Deps{History: history})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./docsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "workspace root the configured paths are relative to")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
}
