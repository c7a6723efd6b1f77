package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/taxid-cli/internal/export"
	"github.com/sells-group/taxid-cli/internal/pipeline"
)

var importLabel string

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load a local CSV or XLSX table into the store",
	Long:  "Reads a table with 統一編號 and name columns, deduplicates it, and upserts the result. A previously exported unified table can be re-imported this way.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		label := importLabel
		if label == "" {
			label = path
		}

		recs, err := export.ReadRecords(path, label)
		if err != nil {
			return eris.Wrapf(err, "import %s", path)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := pipeline.New(pipeline.Deps{
			Persister: newSink(st),
			Runs:      st,
		}).Import(ctx, label, recs)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", path),
			zap.Int("read", res.Run.RecordsRead),
			zap.Int("unified", res.Run.Unified),
			zap.Int("batches_failed", res.Run.BatchesFailed),
		)
		printResult(os.Stdout, res)
		if res.Run.BatchesFailed > 0 {
			return eris.Errorf("import %s: %d batches failed", path, res.Run.BatchesFailed)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importLabel, "label", "", "source label stored with each record (default: file path)")
	rootCmd.AddCommand(importCmd)
}
