package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"docsync/internal/model"
	"docsync/internal/repository"

	"github.com/spf13/cobra"
)

var (
	historyN      int
	historyFailed bool
	historyRun    string
	historyStats  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyStats {
			return printStats()
		}

		q := url.Values{}
		q.Set("n", strconv.Itoa(historyN))
		if historyFailed {
			q.Set("failed", "true")
		}
		if historyRun != "" {
			q.Set("run", historyRun)
		}

		resp, err := http.Get(daemonURL("/history") + "?" + q.Encode())
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var histories []model.History
		if err := json.NewDecoder(resp.Body).Decode(&histories); err != nil {
			return err
		}

		if len(histories) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, h := range histories {
			status := "✓"
			if h.Status == model.StatusFailed {
				status = "✗"
			}

			fmt.Printf("%s [%s] %-7s %s",
				status,
				h.SyncedAt.Format("2006-01-02 15:04:05"),
				h.Action,
				h.SrcPath,
			)
			if h.ErrMsg != "" {
				fmt.Printf(": %s", h.ErrMsg)
			}
			fmt.Println()
		}

		return nil
	},
}

func printStats() error {
	resp, err := http.Get(daemonURL("/history/stats"))
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}

	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	var stats repository.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return err
	}

	fmt.Printf("total: %d, succeeded: %d, failed: %d\n", stats.Total, stats.Success, stats.Failed)
	return nil
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of history entries to show")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "show failed entries only")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "show the entries of one sync pass")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "show totals instead of entries")
	rootCmd.AddCommand(historyCmd)
}
