package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/quantlab/internal/report"
)

var lookaheadCmd = &cobra.Command{
	Use:   "lookahead [strategy]",
	Short: "Check a strategy for look-ahead bias",
	Long: `Run the strategy on the full history and on history truncated before the
horizon, and compare the weights both runs produce on the shared days.`,
	Args: cobra.ExactArgs(1),
	RunE: runLookAhead,
}

func init() {
	lookaheadCmd.Flags().StringVar(&backtestFrom, "from", "", "Start date YYYY-MM-DD (overrides backtest.start_date)")
	lookaheadCmd.Flags().StringVar(&backtestTo, "to", "", "End date YYYY-MM-DD (overrides backtest.end_date)")

	rootCmd.AddCommand(lookaheadCmd)
}

func runLookAhead(cmd *cobra.Command, args []string) error {
	name := args[0]
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.log.Sync()
	defer e.flushMetrics()

	d, closeStore, err := driverFor(e, name, uuid.NewString(), false)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := signalContext()
	defer cancel()

	rep, err := d.CheckLookAhead(ctx)
	if err != nil {
		return fmt.Errorf("look-ahead check failed: %w", err)
	}
	report.NewConsole(cmd.OutOrStdout()).RenderLookAhead(rep)

	if !rep.Passed() {
		e.log.Warn("look-ahead bias detected", zap.Int("violations", len(rep.Violations)))
		return fmt.Errorf("look-ahead bias detected in %d cells", len(rep.Violations))
	}
	return nil
}
