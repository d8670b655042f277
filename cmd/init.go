package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"docsync/internal/config"
	"docsync/internal/render"
	"docsync/internal/util"

	"github.com/spf13/cobra"
)

var initTemplatesForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default docsync.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = "docsync.yaml"
		}
		if rootDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(rootDir, path)
		}

		if err := config.WriteDefault(path); err != nil {
			return err
		}

		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

var initTemplatesCmd = &cobra.Command{
	Use:   "init-templates",
	Short: "Copy the built-in document templates into templates_dir",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		templates, err := render.Builtin()
		if err != nil {
			return err
		}

		names := make([]string, 0, len(templates))
		for name := range templates {
			names = append(names, name)
		}
		sort.Strings(names)

		dir := cfg.Path(cfg.TemplatesDir)
		for _, name := range names {
			dst := filepath.Join(dir, name)
			if _, err := os.Stat(dst); err == nil && !initTemplatesForce {
				fmt.Printf("skipped %s (exists)\n", dst)
				continue
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if err := util.AtomicWriteBytes(dst, templates[name]); err != nil {
				return fmt.Errorf("failed to write %s: %w", dst, err)
			}
			fmt.Printf("wrote %s\n", dst)
		}

		return nil
	},
}

func init() {
	initTemplatesCmd.Flags().BoolVar(&initTemplatesForce, "force", false, "overwrite existing templates")
	rootCmd.AddCommand(initCmd, initTemplatesCmd)
}
