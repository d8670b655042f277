package cmd

import (
	"fmt"

	"docsync/internal/logger"
	"docsync/internal/model"
	"docsync/internal/orchestrator"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncDryRun bool
	syncForce  bool
	syncTarget string
	syncModes  []string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Regenerate documentation for changed configuration files once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		types, err := parseModes(syncModes)
		if err != nil {
			return err
		}

		o, err := newOrchestrator()
		if err != nil {
			return err
		}

		opts := orchestrator.Options{DryRun: syncDryRun, Types: types, Force: syncForce}

		var sum *orchestrator.Summary
		if syncTarget != "" {
			logger.Log.Info("syncing single file",
				zap.String("target", syncTarget))
			sum, err = o.SyncFile(cmd.Context(), syncTarget, opts)
		} else {
			sum, err = o.SyncAll(cmd.Context(), opts)
		}
		if sum != nil {
			printSummary(sum)
		}
		if err != nil {
			return err
		}

		return syncError(sum)
	},
}

// syncError wraps every per-file failure of a pass, or returns nil when
// there were none.
func syncError(sum *orchestrator.Summary) error {
	if !sum.HasFailures() {
		return nil
	}
	return fmt.Errorf("%d file(s) failed to sync: %w", len(sum.Failures), sum.Err)
}

// parseModes turns --mode values into entity types. "all" or no value
// selects every configured type.
func parseModes(modes []string) ([]model.EntityType, error) {
	var types []model.EntityType
	for _, m := range modes {
		if m == "all" {
			return nil, nil
		}
		t, err := model.ParseEntityType(m)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func printSummary(sum *orchestrator.Summary) {
	verb := "updated"
	if sum.DryRun {
		verb = "would update"
	}

	for _, r := range sum.Succeeded {
		if r.Changed {
			fmt.Printf("✓ %-12s %s -> %s\n", verb, r.Source, r.Target)
		}
	}
	for _, p := range sum.Deleted {
		fmt.Printf("- %-12s %s\n", "removed", p)
	}
	for _, w := range sum.Warnings {
		fmt.Printf("! %s\n", w)
	}
	for _, c := range sum.Conflicts {
		fmt.Printf("! conflict %s: %v\n", c.Kind, c.Sources)
	}
	if sum.HasFailures() {
		fmt.Println("failures:")
		fmt.Print(sum.Breakdown())
	}

	fmt.Printf("done: %d synced, %d unchanged, %d deleted, %d failed\n",
		len(sum.Changed()), len(sum.Unchanged), len(sum.Deleted), len(sum.Failures))
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report what would change without writing")
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "regenerate even when the source is unchanged")
	syncCmd.Flags().StringVar(&syncTarget, "target", "", "sync a single source, relative to the config dir")
	syncCmd.Flags().StringSliceVar(&syncModes, "mode", nil, "entity types to sync (agents, lifecycle, tools, llms, all)")
	rootCmd.AddCommand(syncCmd)
}
