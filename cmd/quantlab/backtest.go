package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/report"
	"github.com/newthinker/quantlab/internal/storage/bars"
	"github.com/newthinker/quantlab/internal/storage/state"
	"github.com/newthinker/quantlab/internal/strategy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestFrom      string
	backtestTo        string
	backtestSubmitted bool
	backtestLookAhead bool
	backtestExcel     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy]",
	Short: "Run a walk-forward backtest of a strategy",
	Long: `Run a strategy over historical windows, clean its weights, simulate them
and show performance statistics. Weights and state are persisted to the
configured storage.`,
	Args: cobra.ExactArgs(1),
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "Start date YYYY-MM-DD (overrides backtest.start_date)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "End date YYYY-MM-DD (overrides backtest.end_date)")
	backtestCmd.Flags().BoolVar(&backtestSubmitted, "submitted", false, "Only run the smoke test and persist the submission")
	backtestCmd.Flags().BoolVar(&backtestLookAhead, "lookahead", false, "Also check the full run for look-ahead bias")
	backtestCmd.Flags().BoolVar(&backtestExcel, "excel", false, "Export an xlsx report")

	rootCmd.AddCommand(backtestCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// driverFor builds a driver for the named strategy with the CLI overrides
// applied. The returned close func releases the state store.
func driverFor(e *env, name, runID string, withSink bool) (*backtest.Driver, func() error, error) {
	if backtestFrom != "" {
		e.cfg.Backtest.StartDate = backtestFrom
	}
	if backtestTo != "" {
		e.cfg.Backtest.EndDate = backtestTo
	}
	if backtestSubmitted {
		e.cfg.Backtest.Submitted = true
	}
	if backtestLookAhead {
		e.cfg.Backtest.CheckLookAhead = true
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}
	btCfg, err := e.cfg.BacktestOptions()
	if err != nil {
		return nil, nil, err
	}

	strat, err := newEngine(e.log).Build(name, strategy.Config{Params: e.cfg.StrategyParams(name)})
	if err != nil {
		return nil, nil, err
	}
	source, err := newSource(e.cfg, e.storage, e.log)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := state.Open(e.cfg.StateConfig(name), e.storage)
	if err != nil {
		return nil, nil, fmt.Errorf("opening state store: %w", err)
	}

	opts := []backtest.Option{
		backtest.WithStateStore(store),
		backtest.WithLogger(e.log),
		backtest.WithMetrics(e.metrics),
		backtest.WithRunID(runID),
	}
	if withSink && e.cfg.Backtest.WriteWeights {
		opts = append(opts, backtest.WithSink(bars.NewWeightSink(e.storage, path.Join("weights", name, runID))))
	}

	d, err := backtest.New(btCfg, strat, source, opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return d, closeStore, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	name := args[0]
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.log.Sync()
	defer e.flushMetrics()

	runID := uuid.NewString()
	d, closeStore, err := driverFor(e, name, runID, true)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := signalContext()
	defer cancel()

	e.log.Info("starting backtest", zap.String("strategy", name), zap.String("run_id", runID))
	started := time.Now()
	res, err := d.Run(ctx)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}
	e.log.Info("backtest finished", zap.Duration("elapsed", time.Since(started)))

	if e.cfg.Report.Console {
		report.NewConsole(cmd.OutOrStdout()).Render(res)
	}
	if (backtestExcel || e.cfg.Report.Excel) && res.Report != nil {
		out := filepath.Join(e.cfg.Report.Dir, fmt.Sprintf("%s_%s.xlsx", name, runID))
		if err := report.WriteExcel(res, out); err != nil {
			return fmt.Errorf("writing excel report: %w", err)
		}
		e.log.Info("excel report written", zap.String("path", out))
	}
	if res.LookAhead != nil && !res.LookAhead.Passed() {
		return fmt.Errorf("look-ahead bias detected in %d cells", len(res.LookAhead.Violations))
	}
	return nil
}
