package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/taxid-cli/internal/model"
	"github.com/sells-group/taxid-cli/internal/monitoring"
	"github.com/sells-group/taxid-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect sync run history",
	Long:  "Commands for listing and summarizing recorded sync and import runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		snap, err := monitoring.NewCollector(st).Collect(ctx, int(since.Hours()))
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (complete, partial, failed)")
	runsListCmd.Flags().Int("limit", 20, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 7*24*time.Hour, "time window for stats (0 for all runs)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tSOURCES\tUNIFIED\tDUPLICATES\tBATCHES_FAILED")
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%d\t%d\n",
			id,
			r.Status,
			r.StartedAt.Format(time.RFC3339),
			r.Duration().Round(time.Millisecond),
			r.SourcesOK, r.SourcesOK+r.SourcesFailed,
			r.Unified,
			r.DuplicateGroups,
			r.BatchesFailed,
		)
	}
	_ = w.Flush()
}

// formatSnapshot writes aggregate run statistics to out.
func formatSnapshot(out io.Writer, s *monitoring.Snapshot) {
	window := "all time"
	if s.LookbackHours > 0 {
		window = fmt.Sprintf("last %dh", s.LookbackHours)
	}
	_, _ = fmt.Fprintf(out, "Runs (%s): %d\n", window, s.RunsTotal)
	_, _ = fmt.Fprintf(out, "  Complete: %d\n", s.RunsComplete)
	_, _ = fmt.Fprintf(out, "  Partial:  %d\n", s.RunsPartial)
	_, _ = fmt.Fprintf(out, "  Failed:   %d (%.1f%%)\n", s.RunsFailed, s.FailRate*100)
	_, _ = fmt.Fprintf(out, "Sources skipped: %d\n", s.SourcesFailed)
	_, _ = fmt.Fprintf(out, "Batches failed:  %d\n", s.BatchesFailed)
	if s.LastRun != nil {
		_, _ = fmt.Fprintf(out, "Last run: %s %s at %s\n", s.LastRun.ID, s.LastRun.Status, s.LastRun.StartedAt.Format(time.RFC3339))
	}
}
