package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sells-group/taxid-cli/internal/config"
	"github.com/sells-group/taxid-cli/internal/export"
	"github.com/sells-group/taxid-cli/internal/fetcher"
	"github.com/sells-group/taxid-cli/internal/model"
	"github.com/sells-group/taxid-cli/internal/pipeline"
	"github.com/sells-group/taxid-cli/internal/sink"
)

var (
	syncSourcesPath string
	syncDryRun      bool
	syncNoExport    bool
	syncExportDir   string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch every source feed and rebuild the unified tax-id table",
	Long:  "Downloads each configured source in order, normalizes and deduplicates the rows (earlier sources win), writes the duplicate report and unified table, and upserts the result into the store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sources := cfg.Sources
		if syncSourcesPath != "" {
			s, err := config.LoadSources(syncSourcesPath)
			if err != nil {
				return err
			}
			sources = s
		}
		if syncExportDir != "" {
			cfg.Export.Dir = syncExportDir
		}
		if err := cfg.Validate("sync"); err != nil {
			return err
		}

		deps := pipeline.Deps{Fetcher: newFetcher()}
		if !syncNoExport {
			deps.Exporter = newExporter()
		}
		if !syncDryRun {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			deps.Persister = newSink(st)
			deps.Runs = st
		}

		res, err := pipeline.New(deps).Run(ctx, sources)
		if err != nil {
			return err
		}

		printResult(os.Stdout, res)
		if res.Run.Status == model.RunStatusFailed {
			return fmt.Errorf("sync failed: no source could be read")
		}
		return nil
	},
}

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     config.Seconds(cfg.Fetch.TimeoutSecs, 60*time.Second),
		InsecureTLS: cfg.Fetch.InsecureTLS,
		RatePerSec:  rate.Limit(cfg.Fetch.RatePerSec),
	})
}

func newExporter() *export.Exporter {
	formats := make([]export.Format, 0, len(cfg.Export.Formats))
	for _, f := range cfg.Export.Formats {
		formats = append(formats, export.Format(f))
	}
	return export.New(cfg.Export.Dir, formats...)
}

func newSink(w sink.Writer) *sink.Sink {
	return sink.New(w, cfg.Sink.BatchSize, config.Seconds(cfg.Store.TimeoutSecs, 30*time.Second))
}

func printResult(w io.Writer, res *pipeline.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tRECORDS\tSTATUS")
	for _, s := range res.Sources {
		st := "ok"
		if s.Skipped() {
			st = "skipped: " + s.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Label, s.Records, st)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\nrun %s: %s\n", res.Run.ID, res.Run.Status)
	fmt.Fprintf(w, "read %d, excluded %d, unified %d, duplicate groups %d\n",
		res.Run.RecordsRead, res.Run.Excluded, res.Run.Unified, res.Run.DuplicateGroups)
	if n := len(res.Batches.Batches); n > 0 {
		fmt.Fprintf(w, "persisted %d records in %d batches, %d records failed\n", res.Batches.Succeeded, n, res.Batches.Failed)
	}
	for _, f := range res.Batches.Failures() {
		fmt.Fprintf(w, "  batch at %d (%d records): %v\n", f.Offset, f.Size, f.Err)
	}
	for _, p := range res.Exported {
		fmt.Fprintf(w, "wrote %s\n", p)
	}
	if res.ExportErr != nil {
		fmt.Fprintf(w, "export failed: %v\n", res.ExportErr)
	}
}

func init() {
	syncCmd.Flags().StringVar(&syncSourcesPath, "sources", "", "YAML file listing sources in precedence order (default from config)")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "resolve and export without writing to the store")
	syncCmd.Flags().BoolVar(&syncNoExport, "no-export", false, "skip writing the report and table files")
	syncCmd.Flags().StringVar(&syncExportDir, "export-dir", "", "output directory for exported files (default from config)")
	rootCmd.AddCommand(syncCmd)
}
