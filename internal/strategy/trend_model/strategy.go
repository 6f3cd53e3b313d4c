package trend_model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/indicator"
	"github.com/newthinker/quantlab/internal/strategy"
	"gonum.org/v1/gonum/stat"
)

var errNoFit = errors.New("no asset has enough history to fit")

// TrendModel fits a log-price trend per asset on the training window and
// trades in the trend's direction while price confirms it against an EMA.
type TrendModel struct {
	emaPeriod  int
	minSamples int
	threshold  float64
	longOnly   bool
}

// Model is the fitted per-asset daily log-price slope.
type Model struct {
	Slopes  map[string]float64 `json:"slopes"`
	Samples int                `json:"samples"`
}

// New creates a trend model strategy with the default parameters
func New() *TrendModel {
	return &TrendModel{emaPeriod: 20, minSamples: 30}
}

func (m *TrendModel) Name() string {
	return "trend_model"
}

func (m *TrendModel) Description() string {
	return fmt.Sprintf("Log-trend model with EMA(%d) confirmation", m.emaPeriod)
}

func (m *TrendModel) Init(cfg strategy.Config) error {
	var err error
	if m.emaPeriod, err = strategy.IntParam(cfg.Params, "ema_period", m.emaPeriod); err != nil {
		return err
	}
	if m.minSamples, err = strategy.IntParam(cfg.Params, "min_samples", m.minSamples); err != nil {
		return err
	}
	if m.threshold, err = strategy.FloatParam(cfg.Params, "threshold", m.threshold); err != nil {
		return err
	}
	if m.longOnly, err = strategy.BoolParam(cfg.Params, "long_only", m.longOnly); err != nil {
		return err
	}
	if m.emaPeriod <= 0 {
		return fmt.Errorf("ema_period must be positive, got %d", m.emaPeriod)
	}
	if m.minSamples < 2 {
		return fmt.Errorf("min_samples must be at least 2, got %d", m.minSamples)
	}
	return nil
}

func (m *TrendModel) Backtest() backtest.Strategy {
	return backtest.ModelBased(m.Train, m.Predict)
}

// Train regresses log close on elapsed days for every asset.
func (m *TrendModel) Train(data *grid.Grid) (json.RawMessage, error) {
	px := data.Field(core.FieldClose)
	if px == nil || data.Empty() {
		return nil, fmt.Errorf("trend_model: %w", core.ErrInvalidInput)
	}

	model := Model{Slopes: make(map[string]float64), Samples: data.Len()}
	origin := data.First()
	for a, asset := range data.Assets {
		var xs, ys []float64
		for t, ts := range data.Times {
			v := px.At(t, a)
			if !grid.IsFinite(v) || v <= 0 {
				continue
			}
			xs = append(xs, ts.Sub(origin).Hours()/24)
			ys = append(ys, math.Log(v))
		}
		if len(xs) < m.minSamples {
			continue
		}
		_, beta := stat.LinearRegression(xs, ys, nil, false)
		if grid.IsFinite(beta) {
			model.Slopes[asset] = beta
		}
	}
	if len(model.Slopes) == 0 {
		return nil, errNoFit
	}
	return json.Marshal(model)
}

// Predict returns one row per window timestamp. Each row only looks at
// prices up to its own time.
func (m *TrendModel) Predict(data *grid.Grid, raw, state json.RawMessage) (*grid.Panel, json.RawMessage, error) {
	var model Model
	if err := json.Unmarshal(raw, &model); err != nil {
		return nil, nil, fmt.Errorf("decode trend model: %w", err)
	}
	px := data.Field(core.FieldClose)
	if px == nil {
		return nil, nil, fmt.Errorf("trend_model: %w", core.ErrInvalidInput)
	}

	out := grid.NewPanel(data.Times, data.Assets)
	out.FillNaN(0)
	for a, asset := range data.Assets {
		slope, ok := model.Slopes[asset]
		if !ok || math.Abs(slope) <= m.threshold {
			continue
		}
		prices := px.Column(a)
		ema := indicator.EMA(prices, m.emaPeriod)
		for t, p := range prices {
			if !grid.IsFinite(p) || math.IsNaN(ema[t]) {
				continue
			}
			switch {
			case slope > 0 && p > ema[t]:
				out.Set(t, a, 1)
			case slope < 0 && p < ema[t] && !m.longOnly:
				out.Set(t, a, -1)
			}
		}
	}

	for t := 0; t < out.Rows(); t++ {
		row := out.Row(t)
		active := 0
		for _, v := range row {
			if v != 0 {
				active++
			}
		}
		for a := range row {
			if active > 0 {
				row[a] /= float64(active)
			}
		}
	}
	return out, state, nil
}
