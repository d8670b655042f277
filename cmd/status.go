package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"docsync/internal/orchestrator"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var st orchestrator.Status
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		lastSync := "-"
		if st.LastSync != nil {
			lastSync = st.LastSync.Format("2006-01-02 15:04:05")
		}

		fmt.Printf("%-10s %-8s %-8s %-10s %-8s %-8s %s\n",
			"STATE", "SOURCES", "DOCS", "CONFLICTS", "SYNCED", "FAILED", "LAST SYNC")
		fmt.Printf("%-10s %-8d %-8d %-10d %-8d %-8d %s\n",
			st.State, st.Sources, st.Documents, st.Conflicts, st.Synced, st.Failed, lastSync)
		fmt.Printf("watching: %t, uptime: %s\n", st.Watching, time.Since(st.StartedAt).Round(time.Second))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
