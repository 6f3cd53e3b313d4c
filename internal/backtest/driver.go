// Package backtest runs strategies walk-forward over historical data: a smoke
// test on the latest window, a full run with state carry-over and model
// retraining, an optional look-ahead check and the final analysis.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/quantlab/internal/clean"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/metrics"
	"go.uber.org/zap"
)

// Driver orchestrates one strategy over one data source.
type Driver struct {
	cfg      Config
	strategy Strategy
	source   Source
	sink     Sink
	store    StateStore
	window   WindowFunc
	cleaner  Cleaner
	logger   *zap.Logger
	metrics  *metrics.Registry
	now      func() time.Time
	runID    string
}

// Option configures a Driver.
type Option func(*Driver)

// WithSink sets where cleaned weights are written.
func WithSink(s Sink) Option {
	return func(d *Driver) { d.sink = s }
}

// WithStateStore sets where the strategy state is persisted.
func WithStateStore(s StateStore) Option {
	return func(d *Driver) { d.store = s }
}

// WithWindow replaces DefaultWindow.
func WithWindow(fn WindowFunc) Option {
	return func(d *Driver) { d.window = fn }
}

// WithCleaner replaces clean.Clean.
func WithCleaner(fn Cleaner) Option {
	return func(d *Driver) { d.cleaner = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithRunID names the run; by default every Run gets a fresh UUID.
func WithRunID(id string) Option {
	return func(d *Driver) { d.runID = id }
}

// WithClock overrides time.Now for the data horizon and state timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// New creates a Driver. Without a sink or state store, outputs and state
// live only in the returned Result.
func New(cfg Config, strategy Strategy, source Source, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("nil data source"))
	}

	d := &Driver{
		cfg:      cfg,
		strategy: strategy,
		source:   source,
		window:   DefaultWindow,
		cleaner:  clean.Clean,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run executes the whole backtest. The context is checked between phases;
// a running phase is never interrupted.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	res, err := d.run(ctx)
	d.metrics.RecordBacktest(err == nil, time.Since(started).Seconds())
	return res, err
}

func (d *Driver) run(ctx context.Context) (*Result, error) {
	runID := d.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	res := &Result{RunID: runID, Strategy: d.strategy.Name()}
	log := d.logger.With(zap.String("run_id", res.RunID), zap.String("strategy", res.Strategy))

	data, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := d.readState(ctx)
	if err != nil {
		return nil, err
	}

	// Smoke test
	log.Info("smoke test", zap.Time("at", data.Last()), zap.Stringer("kind", d.strategy.Kind()))
	submission, state, err := d.smokeTest(data, stored, log)
	if err != nil {
		return nil, core.WrapError(core.ErrStrategyFailed, err)
	}
	if res.Submission, _, err = d.cleaner(submission, data); err != nil {
		return nil, fmt.Errorf("clean submission: %w", err)
	}
	res.State = state
	if err := d.persist(ctx, res.Submission, state); err != nil {
		return nil, err
	}
	if d.cfg.Submitted {
		log.Info("submitted mode, skipping full run")
		return res, nil
	}

	// Full run
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info("full run", zap.Time("from", d.cfg.StartDate), zap.Time("to", data.Last()))
	run, err := d.fullRun(data, log)
	if err != nil {
		return nil, err
	}
	res.Iterations, res.Failures, res.Retrains = run.iterations, run.failures, run.retrains
	res.State = run.state

	weights, cleanRep, err := d.cleaner(run.weights, data)
	if err != nil {
		return nil, fmt.Errorf("clean weights: %w", err)
	}
	res.Weights = weights
	if err := d.persist(ctx, weights, run.state); err != nil {
		return nil, err
	}
	log.Info("full run finished",
		zap.Int("iterations", run.iterations),
		zap.Int("failures", run.failures),
		zap.Int("retrains", run.retrains),
		zap.Int("clean_fixes", cleanRep.Fixes()),
	)

	if d.cfg.CheckLookAhead {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.LookAhead, err = d.lookAhead(data, weights, log); err != nil {
			return nil, err
		}
	}

	if d.cfg.Analyze {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.Report, err = d.analyze(data, weights, cleanRep); err != nil {
			return nil, err
		}
		log.Info("analysis finished", zap.Float64("equity", res.Report.Simulation.FinalEquity()))
	}
	return res, nil
}

// CheckLookAhead loads the data and compares a full run against a run on
// data truncated by LookAheadTruncateDays.
func (d *Driver) CheckLookAhead(ctx context.Context) (*LookAheadReport, error) {
	log := d.logger.With(zap.String("strategy", d.strategy.Name()))
	data, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	run, err := d.fullRun(data, log)
	if err != nil {
		return nil, err
	}
	full, _, err := d.cleaner(run.weights, data)
	if err != nil {
		return nil, fmt.Errorf("clean weights: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.lookAhead(data, full, log)
}

func (d *Driver) load(ctx context.Context) (*grid.Grid, error) {
	history := d.cfg.LookbackPeriod
	if d.strategy.Kind() == KindModel {
		history = max(history, d.cfg.TrainPeriod)
	}
	from := d.cfg.StartDate.AddDate(0, 0, -history)
	to := d.cfg.EndDate
	if to.IsZero() {
		to = d.now()
	}

	data, err := d.source.Load(ctx, d.cfg.AssetClass, from, to)
	if err != nil {
		return nil, core.WrapError(core.ErrSourceFailed, err)
	}
	if data.Empty() {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("%s between %s and %s",
			d.cfg.AssetClass, from.Format(time.DateOnly), to.Format(time.DateOnly)))
	}
	if err := data.Sort(); err != nil {
		return nil, err
	}
	return data, nil
}

func (d *Driver) readState(ctx context.Context) (*State, error) {
	if d.store == nil {
		return nil, nil
	}
	st, err := d.store.Read(ctx)
	if err != nil {
		return nil, core.WrapError(core.ErrStateStore, err)
	}
	return st, nil
}

// persist writes cleaned weights to the sink and the state to the store.
func (d *Driver) persist(ctx context.Context, weights *grid.Panel, state State) error {
	if d.sink != nil {
		if err := d.sink.Write(ctx, weights); err != nil {
			return core.WrapError(core.ErrSinkFailed, err)
		}
	}
	if d.store != nil {
		if err := d.store.Write(ctx, state); err != nil {
			return core.WrapError(core.ErrStateStore, err)
		}
	}
	return nil
}

// smokeTest runs one iteration on the latest window with the stored state.
func (d *Driver) smokeTest(data *grid.Grid, stored *State, log *zap.Logger) (*grid.Panel, State, error) {
	state := State{CreatedAt: d.now()}
	if stored != nil {
		state = *stored
	}
	at := data.Last()
	window := d.window(data, at, d.cfg.LookbackPeriod)

	var out Outcome
	if d.strategy.Kind() == KindModel {
		trained, err := d.ensureModel(data, at, &state, d.cfg.RetrainIntervalAfterSubmit)
		if err != nil && !state.HasModel() {
			return nil, state, fmt.Errorf("train: %w", err)
		}
		if err != nil {
			log.Warn("retrain failed, using stored model", zap.Error(err))
		}
		if trained {
			log.Debug("model trained", zap.Time("at", at))
		}
		out = d.timed("predict", func() Outcome { return d.strategy.Predict(window, state.Model, state.Payload) })
	} else {
		out = d.timed("run", func() Outcome { return d.strategy.Run(window, state.Payload) })
	}
	if !out.OK() {
		return nil, state, out.Err
	}

	state.Payload = out.State
	assets, values := rowAt(out.Weights, at)
	row := grid.NewPanel([]time.Time{at}, assets)
	copy(row.Values, values)
	return row, state, nil
}

// ensureModel trains when no model exists, when interval <= 1, or when t is
// at least interval days past the model's creation.
func (d *Driver) ensureModel(data *grid.Grid, t time.Time, state *State, interval int) (bool, error) {
	if state.HasModel() && interval > 1 && t.Before(state.ModelCreatedAt.AddDate(0, 0, interval)) {
		return false, nil
	}
	window := d.window(data, t, d.cfg.TrainPeriod)
	out := d.timed("train", func() Outcome { return d.strategy.Train(window) })
	if !out.OK() {
		return false, out.Err
	}
	state.Model = out.Model
	state.ModelCreatedAt = t
	d.metrics.RecordRetrain()
	return true, nil
}

// timed invokes call and records its duration and outcome.
func (d *Driver) timed(kind string, call func() Outcome) Outcome {
	started := time.Now()
	out := call()
	d.metrics.RecordIteration(kind, out.OK(), time.Since(started).Seconds())
	return out
}
