package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/taxid-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "taxid-cli",
	Short: "Taiwan unified tax-id reconciliation and lookup",
	Long:  "Downloads the FIA open-data registries, merges them into one deduplicated tax-id table, persists it, and serves tax-id and name lookups backed by the live business registry.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
