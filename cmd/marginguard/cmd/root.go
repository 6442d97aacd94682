package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "marginguard",
	Short: "Margin and liquidation risk engine for perpetual futures",
	Long: `Marginguard tracks maintenance margin, margin ratio and liquidation
prices across every open route of a futures account, and stops the session
when the margin ratio reaches the liquidation threshold.

It provides tools for:
  - Downloading and caching Binance, Bybit and FTX risk tables
  - Replaying recorded positions through the risk engine
  - Journaling every cycle to CSV, SQLite or Postgres
  - Serving a live watchlist and Prometheus metrics`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile == "" {
			return nil
		}
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	},
}

var (
	configPath string
	envFile    string
	logLevel   string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "marginguard.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config (missing is fine)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}
