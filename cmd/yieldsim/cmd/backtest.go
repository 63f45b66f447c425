package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mwfarley/yieldsim/audit"
	"github.com/mwfarley/yieldsim/config"
	"github.com/mwfarley/yieldsim/journal"
	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/run"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical data through one or more strategy configurations",
	Long: `Backtest replays a historical data file through each given run
configuration and reports the terminal state of every run.

Runs execute against simulated venue adapters built from the config's
venue table. Pass --config more than once to batch runs over the same
data; --workers bounds how many execute at once.

Example:
  yieldsim backtest --data data/rates.csv --config lending.yaml --config basis.yaml`,
	RunE: runBacktest,
}

var (
	btConfigs []string
	btData    string
	btDB      string
	btWorkers int
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringArrayVarP(&btConfigs, "config", "c", nil, "run configuration file, repeatable (required)")
	backtestCmd.Flags().StringVarP(&btData, "data", "d", "", "historical data CSV (required)")
	backtestCmd.Flags().StringVar(&btDB, "db", "", "override journal with a SQLite DB at this path")
	backtestCmd.Flags().IntVarP(&btWorkers, "workers", "w", 2, "max runs executing at once")

	backtestCmd.MarkFlagRequired("config")
	backtestCmd.MarkFlagRequired("data")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	var sink audit.Sink = audit.Nop{}
	if verbose {
		sink = audit.NewZap(log)
	}

	data, err := market.LoadCSV(btData)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}

	// With --db every run journals into one database; they share a single
	// handle so concurrent writers queue inside database/sql instead of
	// racing for the file lock.
	var shared journal.Journal
	if btDB != "" {
		shared, err = journal.NewSQLite(btDB)
		if err != nil {
			return fmt.Errorf("%s: %w", btDB, err)
		}
		defer closeLedger(shared, btDB)
	}

	orchs := make([]*run.Orchestrator, 0, len(btConfigs))
	for _, path := range btConfigs {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		ledger := shared
		if ledger == nil {
			if ledger, err = cfg.OpenJournal(); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			defer closeLedger(ledger, path)
		}

		o, err := run.New(cfg, data, nil, sink, ledger)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		orchs = append(orchs, o)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Running %d backtest(s) over %d timestamps\n\n", len(orchs), len(data.Timestamps()))

	errs := run.NewPool(btWorkers).RunAll(ctx, orchs)

	failed := false
	for i, o := range orchs {
		fmt.Printf("Run %s\n", o.RunID())
		fmt.Printf("  Config: %s\n", btConfigs[i])
		fmt.Printf("  Mode:   %s\n", o.Mode())
		fmt.Printf("  State:  %s\n", o.State())
		fmt.Printf("  Steps:  %d\n", len(o.Steps()))
		if errs[i] != nil {
			fmt.Printf("  Error:  %v\n", errs[i])
			failed = true
		}
		if steps := o.Steps(); len(steps) > 0 {
			last := steps[len(steps)-1]
			fmt.Printf("  Final net exposure: %s (gross %s)\n", last.Exposure.NetValue, last.Exposure.Gross)
		}
		fmt.Println()
	}

	if failed {
		return fmt.Errorf("one or more runs did not complete")
	}
	return nil
}

func closeLedger(l journal.Journal, path string) {
	if err := l.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close journal for %s: %v\n", path, err)
	}
}
