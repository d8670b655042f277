package cmd

import (
	"fmt"
	"time"

	"docsync/internal/audit"
	"docsync/internal/logger"
	"docsync/internal/util"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	auditCheck  bool
	auditReport bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report configuration files and documents that have lost their counterpart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		o, err := newOrchestrator()
		if err != nil {
			return err
		}

		report, err := o.Audit()
		if err != nil {
			return err
		}

		for _, m := range report.SourcesWithoutDocs {
			fmt.Printf("missing doc    [%s] %s -> %s\n", m.Type, m.SourcePath, m.ExpectedDoc)
		}
		for _, m := range report.DocsWithoutSources {
			fmt.Printf("missing source [%s] %s (expected %s)\n", m.Type, m.DocPath, m.ExpectedSource)
		}
		for _, c := range report.Conflicts {
			fmt.Printf("conflict       [%s] %s: %v\n", c.Kind, c.Name, c.Sources)
		}
		fmt.Printf("%d issue(s) found\n", report.IssueCount())

		if auditReport {
			path := cfg.Path(cfg.ReportFile)
			if err := util.AtomicWriteBytes(path, []byte(audit.Markdown(report, time.Now()))); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			logger.Log.Info("consistency report written",
				zap.String("path", path))
		}

		if auditCheck && report.IssueCount() > 0 {
			return fmt.Errorf("consistency check failed with %d issue(s)", report.IssueCount())
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().BoolVar(&auditCheck, "check", false, "exit non-zero when any issue is found")
	auditCmd.Flags().BoolVar(&auditReport, "report", false, "write a markdown consistency report")
	rootCmd.AddCommand(auditCmd)
}
