package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"docsync/internal/autostart"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Register the watch daemon to start on login",
	RunE: func(cmd *cobra.Command, args []string) error {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		root, err := filepath.Abs(cfg.Root)
		if err != nil {
			return err
		}

		opts := autostart.Options{ExecPath: execPath, Root: root}
		if cfgFile != "" {
			if opts.ConfigFile, err = filepath.Abs(cfgFile); err != nil {
				return err
			}
		}

		as := autostart.New()
		if err := as.Install(opts); err != nil {
			return err
		}

		fmt.Println("docsync daemon registered for autostart")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
