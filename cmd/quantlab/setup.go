package main

import (
	"fmt"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/collector"
	"github.com/newthinker/quantlab/internal/collector/yahoo"
	"github.com/newthinker/quantlab/internal/config"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/logger"
	"github.com/newthinker/quantlab/internal/metrics"
	"github.com/newthinker/quantlab/internal/storage/archive"
	"github.com/newthinker/quantlab/internal/storage/bars"
	"github.com/newthinker/quantlab/internal/strategy"
	"github.com/newthinker/quantlab/internal/strategy/ma_crossover"
	"github.com/newthinker/quantlab/internal/strategy/momentum"
	"github.com/newthinker/quantlab/internal/strategy/trend_model"
	"go.uber.org/zap"
)

// env is what every command needs: configuration, logging and storage.
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	storage archive.Storage
	metrics *metrics.Registry
}

func setup() (*env, error) {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	log, err := logger.NewAt(debug, level)
	if err != nil {
		return nil, err
	}
	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}

	storage, err := archive.Open(cfg.ArchiveConfig())
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	e := &env{cfg: cfg, log: log, storage: storage}
	if cfg.Metrics.Enabled {
		e.metrics = metrics.NewRegistry()
	}
	return e, nil
}

// flushMetrics writes the Prometheus textfile when metrics are enabled.
func (e *env) flushMetrics() {
	if e.metrics == nil {
		return
	}
	if err := e.metrics.WriteFile(e.cfg.Metrics.Path); err != nil {
		e.log.Warn("writing metrics", zap.Error(err))
		return
	}
	e.log.Debug("metrics written", zap.String("path", e.cfg.Metrics.Path))
}

// newEngine registers the built-in strategies.
func newEngine(log *zap.Logger) *strategy.Engine {
	engine := strategy.NewEngine(log)
	engine.Register(ma_crossover.New(10, 50))
	engine.Register(momentum.New())
	engine.Register(trend_model.New())
	return engine
}

// newSource routes the configured asset class to the configured source.
func newSource(cfg *config.Config, storage archive.Storage, log *zap.Logger) (backtest.Source, error) {
	class := core.AssetClass(cfg.Data.AssetClass)
	registry := collector.NewRegistry()

	switch cfg.Data.Source {
	case config.SourceYahoo:
		y := yahoo.New(yahoo.WithLogger(log))
		if err := y.Init(collector.Config{Symbols: cfg.Data.Symbols, Interval: cfg.Data.Interval}); err != nil {
			return nil, err
		}
		registry.Register(core.AssetStocks, y)
		registry.Register(core.AssetIndex, y)
	default:
		registry.Register(class, bars.NewStore(storage, bars.WithSymbols(cfg.Data.Symbols...), bars.WithLogger(log)))
	}

	if _, ok := registry.Get(class); !ok {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("source %s cannot serve asset class %s", cfg.Data.Source, class))
	}
	return registry, nil
}
