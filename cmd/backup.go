package cmd

import (
	"fmt"
	"os"

	"docsync/internal/backup"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage document backups",
}

func backupManager() (*backup.Manager, error) {
	o, err := newOrchestrator()
	if err != nil {
		return nil, err
	}
	return o.Backups(), nil
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := backupManager()
		if err != nil {
			return err
		}

		snaps, err := m.List()
		if err != nil {
			return err
		}

		if len(snaps) == 0 {
			fmt.Println("no backups yet")
			return nil
		}

		fmt.Printf("%-36s %-20s %s\n", "ID", "CREATED", "FORMAT")
		for _, s := range snaps {
			format := "dir"
			if s.Compressed {
				format = "zip"
			}
			fmt.Printf("%-36s %-20s %s\n", s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"), format)
		}

		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [id]",
	Short: "Restore every document of a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := backupManager()
		if err != nil {
			return err
		}

		restored, err := m.Restore(args[0])
		for _, p := range restored {
			fmt.Printf("restored %s\n", p)
		}
		return err
	},
}

var backupShowCmd = &cobra.Command{
	Use:   "show [id] [path]",
	Short: "Print a document as it was archived in a backup",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := backupManager()
		if err != nil {
			return err
		}

		data, err := m.ReadFile(args[0], args[1])
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove backups beyond the retention count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := backupManager()
		if err != nil {
			return err
		}

		removed, err := m.Prune()
		if err != nil {
			return err
		}

		fmt.Printf("%d backup(s) removed\n", len(removed))
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupListCmd, backupRestoreCmd, backupShowCmd, backupPruneCmd)
	rootCmd.AddCommand(backupCmd)
}
