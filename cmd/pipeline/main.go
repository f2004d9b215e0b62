package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-customer-intel/internal/config"
	"go-customer-intel/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	jsonLogs   bool
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "custintel",
	Short: "Customer intelligence pipeline",
	Long: `custintel runs the customer intelligence pipeline over retail transactions:
ingestion, cleaning and feature engineering followed by RFM analysis,
k-means segmentation, customer lifetime value, KPIs and revenue forecasting.

Examples:
  custintel run --data data/online_retail.xlsx
  custintel serve --config config.yaml
  custintel validate data/transactions.csv`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if cmd.Flags().Changed("json-logs") {
			cfg.Log.JSON = jsonLogs
		}
		return logger.Initialize(cfg.Log.JSON, cfg.Log.Level)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON logs")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
