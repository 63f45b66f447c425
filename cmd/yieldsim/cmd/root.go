package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "yieldsim",
	Short: "A deterministic backtester for delta-managed crypto yield strategies",
	Long: `Yieldsim replays historical market data through risk-managed yield
strategies and records every step to an auditable ledger.

It provides tools for:
  - Backtesting lending, staking, basis and market-neutral strategies
  - Decimal-exact LTV, health-factor and liquidation accounting
  - Deterministic replays: identical inputs produce identical ledgers
  - SQLite run journals for post-hoc analysis`,
}

var verbose bool

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every pipeline stage")
}

// newLogger builds the process logger; verbose switches to the development
// encoder with per-stage output.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
