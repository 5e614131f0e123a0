package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bidwatch/bidcard/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bidcard",
	Short: "Procurement announcement crawler and business-card directory",
	Long:  "Crawls the government procurement portal's bxsearch results, extracts contact information from announcement detail pages, and merges it into a deduplicated business-card directory.",
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
