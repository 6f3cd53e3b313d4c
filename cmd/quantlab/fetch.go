package main

import (
	"fmt"
	"time"

	"github.com/newthinker/quantlab/internal/collector"
	"github.com/newthinker/quantlab/internal/collector/yahoo"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/storage/bars"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	fetchFrom string
	fetchTo   string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download bars for the configured symbols into the parquet store",
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "", "Start date YYYY-MM-DD (required)")
	fetchCmd.Flags().StringVar(&fetchTo, "to", "", "End date YYYY-MM-DD (default today)")
	fetchCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.log.Sync()

	from, err := time.Parse(time.DateOnly, fetchFrom)
	if err != nil {
		return fmt.Errorf("invalid from date format (expected YYYY-MM-DD): %w", err)
	}
	to := time.Now().UTC()
	if fetchTo != "" {
		if to, err = time.Parse(time.DateOnly, fetchTo); err != nil {
			return fmt.Errorf("invalid to date format (expected YYYY-MM-DD): %w", err)
		}
	}
	if len(e.cfg.Data.Symbols) == 0 {
		return fmt.Errorf("no symbols configured under data.symbols")
	}

	class := core.AssetClass(e.cfg.Data.AssetClass)
	y := yahoo.New(yahoo.WithLogger(e.log))
	if err := y.Init(collector.Config{Symbols: e.cfg.Data.Symbols, Interval: e.cfg.Data.Interval}); err != nil {
		return err
	}
	store := bars.NewStore(e.storage, bars.WithLogger(e.log))

	ctx, cancel := signalContext()
	defer cancel()

	for _, symbol := range e.cfg.Data.Symbols {
		history, err := y.FetchHistory(ctx, symbol, from, to, e.cfg.Data.Interval)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", symbol, err)
		}
		if err := store.WriteBars(ctx, class, history); err != nil {
			return fmt.Errorf("storing %s: %w", symbol, err)
		}
		e.log.Info("stored bars", zap.String("symbol", symbol), zap.Int("bars", len(history)))
	}
	return nil
}
