package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/taxid-cli/internal/config"
	"github.com/sells-group/taxid-cli/internal/lookup"
	"github.com/sells-group/taxid-cli/internal/model"
	"github.com/sells-group/taxid-cli/internal/monitoring"
	"github.com/sells-group/taxid-cli/internal/registry"
	"github.com/sells-group/taxid-cli/internal/store"
)

var (
	lookupName     string
	lookupSkipLive bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [tax-id...]",
	Short: "Look up tax-ids or search by name",
	Long:  "Resolves tax-ids against the live business registry, falling back to the store. With --name, searches stored names instead. Results are printed as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if len(args) == 0 && lookupName == "" {
			return &lookup.ValidationError{Reason: "a tax id or --name is required"}
		}
		if err := cfg.Validate("lookup"); err != nil {
			return err
		}

		st, err := openLookupStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		svc := newLookupService(st, nil)

		var results []model.LookupResult
		switch {
		case len(args) > 1:
			results, err = svc.BatchLookup(ctx, args, lookupSkipLive)
		case len(args) == 1:
			results, err = svc.Lookup(ctx, lookup.Query{TaxID: args[0], SkipLive: lookupSkipLive})
		default:
			results, err = svc.Lookup(ctx, lookup.Query{Name: lookupName})
		}
		if err != nil {
			return err
		}

		return writeResults(os.Stdout, results)
	},
}

// openLookupStore opens the store, or returns nil when no database is
// configured so live-registry lookups still work.
func openLookupStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		var ce *config.ConfigError
		if errors.As(err, &ce) {
			zap.L().Warn("store unavailable, live registry only", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	return st, nil
}

func newLookupService(st store.Store, metrics *monitoring.Metrics) *lookup.Service {
	var reg lookup.Registry
	if !cfg.Registry.Disabled {
		reg = registry.New(registry.Options{
			BaseURL:    cfg.Registry.BaseURL,
			Timeout:    config.Seconds(cfg.Registry.TimeoutSecs, 5*time.Second),
			UserAgent:  cfg.Fetch.UserAgent,
			RatePerSec: cfg.Registry.RatePerSec,
		})
	}

	var ls lookup.Store
	if st != nil {
		ls = st
	}

	return lookup.New(reg, ls, lookup.Options{
		RegistryLabel: cfg.Registry.SourceLabel,
		NotFoundLabel: cfg.Lookup.NotFoundLabel,
		NameLimit:     cfg.Lookup.NameLimit,
		MaxBatch:      cfg.Lookup.MaxBatch,
		Metrics:       metrics,
	})
}

func writeResults(w io.Writer, results []model.LookupResult) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func init() {
	lookupCmd.Flags().StringVar(&lookupName, "name", "", "search stored records whose name contains this text")
	lookupCmd.Flags().BoolVar(&lookupSkipLive, "skip-live", false, "skip the live registry and answer from the store")
	rootCmd.AddCommand(lookupCmd)
}
