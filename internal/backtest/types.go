package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/newthinker/quantlab/internal/clean"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/simulator"
	"github.com/newthinker/quantlab/internal/stats"
)

// State is the strategy carry-over owned by the driver. It is passed by
// value into and out of every strategy call.
type State struct {
	Payload        json.RawMessage `json:"payload,omitempty"`
	Model          json.RawMessage `json:"model,omitempty"`
	ModelCreatedAt time.Time       `json:"model_created_at"`
	CreatedAt      time.Time       `json:"created_at"`
}

// HasModel reports whether a trained model is present.
func (s State) HasModel() bool { return len(s.Model) > 0 }

// Source loads market data for an asset class.
type Source interface {
	Load(ctx context.Context, class core.AssetClass, from, to time.Time) (*grid.Grid, error)
}

// Sink receives cleaned weights.
type Sink interface {
	Write(ctx context.Context, weights *grid.Panel) error
}

// StateStore persists the strategy state between invocations. Read returns
// nil when nothing has been stored.
type StateStore interface {
	Read(ctx context.Context) (*State, error)
	Write(ctx context.Context, state State) error
}

// Cleaner repairs raw strategy output against the data it was produced on.
type Cleaner func(weights *grid.Panel, data *grid.Grid) (*grid.Panel, clean.Report, error)

// Config controls a backtest invocation. Periods and intervals are calendar days.
type Config struct {
	AssetClass core.AssetClass
	StartDate  time.Time
	// EndDate bounds the data horizon; zero means now.
	EndDate time.Time

	LookbackPeriod int
	Step           int

	TrainPeriod                int
	RetrainInterval            int
	RetrainIntervalAfterSubmit int
	PredictEachDay             bool

	// Submitted stops after the smoke test.
	Submitted bool

	CheckLookAhead        bool
	LookAheadTruncateDays int
	Tolerance             float64

	Analyze    bool
	Simulation simulator.Options
	Stats      stats.Options
}

// DefaultConfig returns a one-year lookback daily backtest with analysis.
func DefaultConfig() Config {
	simOpts := simulator.DefaultOptions()
	simOpts.SlippageFraction = core.AssetStocks.SlippageFraction()
	return Config{
		AssetClass:                 core.AssetStocks,
		LookbackPeriod:             365,
		Step:                       1,
		TrainPeriod:                4 * 365,
		RetrainInterval:            365,
		RetrainIntervalAfterSubmit: 1,
		LookAheadTruncateDays:      182,
		Tolerance:                  grid.Epsilon,
		Analyze:                    true,
		Simulation:                 simOpts,
		Stats:                      stats.DefaultOptions(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case !c.AssetClass.Valid():
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("unknown asset class %q", c.AssetClass))
	case c.StartDate.IsZero():
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("start date is required"))
	case !c.EndDate.IsZero() && !c.EndDate.After(c.StartDate):
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("end date must be after start date"))
	case c.LookbackPeriod < 1:
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("lookback period must be >= 1, got %d", c.LookbackPeriod))
	case c.Step < 1:
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("step must be >= 1, got %d", c.Step))
	case c.TrainPeriod < 1:
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("train period must be >= 1, got %d", c.TrainPeriod))
	case c.LookAheadTruncateDays < 1:
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("look-ahead truncation must be >= 1 day"))
	case c.Tolerance < 0:
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("tolerance must be >= 0"))
	}
	return nil
}

// Report is the analysis of a weight grid.
type Report struct {
	Clean      clean.Report
	Weights    *grid.Panel
	Simulation *simulator.Result
	Stats      *stats.Frame
}

// Result summarizes a backtest invocation.
type Result struct {
	RunID    string
	Strategy string

	// Submission is the cleaned smoke-test output.
	Submission *grid.Panel
	// Weights is the cleaned full-run output; nil in submitted mode.
	Weights *grid.Panel
	State   State

	Iterations int
	Failures   int
	Retrains   int

	LookAhead *LookAheadReport
	Report    *Report
}

// Violation is one cell where the truncated run disagrees with the full run.
type Violation struct {
	Time      time.Time
	Asset     string
	Full      float64
	Truncated float64
}

// LookAheadReport compares a full run with a run on truncated data.
type LookAheadReport struct {
	Horizon    time.Time
	Truncated  time.Time
	Compared   int
	MaxDiff    float64
	Violations []Violation
}

// Passed reports whether no difference exceeded the tolerance.
func (r *LookAheadReport) Passed() bool {
	return len(r.Violations) == 0
}
