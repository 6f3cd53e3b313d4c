package trend_model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/strategy"
)

// series builds daily closes where asset a grows by rates[a] per day.
func series(n int, assets []string, rates []float64) *grid.Grid {
	times := make([]time.Time, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range times {
		times[i] = start.AddDate(0, 0, i)
	}
	g := grid.New(times, assets, core.FieldClose)
	p := g.Field(core.FieldClose)
	for t := 0; t < n; t++ {
		for a := range assets {
			p.Set(t, a, 100*math.Exp(rates[a]*float64(t)))
		}
	}
	return g
}

func newModel(t *testing.T, params map[string]any) *TrendModel {
	t.Helper()
	m := New()
	if err := m.Init(strategy.Config{Params: params}); err != nil {
		t.Fatalf("init: %v", err)
	}
	return m
}

func TestTrendModel_Kind(t *testing.T) {
	if New().Backtest().Kind() != backtest.KindModel {
		t.Error("expected model-based strategy")
	}
}

func TestTrendModel_TrainRecoversSlope(t *testing.T) {
	m := newModel(t, map[string]any{"min_samples": 10})
	data := series(50, []string{"UP", "DOWN"}, []float64{0.01, -0.02})

	raw, err := m.Train(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var model Model
	if err := json.Unmarshal(raw, &model); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if math.Abs(model.Slopes["UP"]-0.01) > 1e-9 {
		t.Errorf("expected UP slope 0.01, got %v", model.Slopes["UP"])
	}
	if math.Abs(model.Slopes["DOWN"]+0.02) > 1e-9 {
		t.Errorf("expected DOWN slope -0.02, got %v", model.Slopes["DOWN"])
	}
	if model.Samples != 50 {
		t.Errorf("expected 50 samples, got %d", model.Samples)
	}
}

func TestTrendModel_TrainNotEnoughHistory(t *testing.T) {
	m := newModel(t, map[string]any{"min_samples": 100})
	data := series(20, []string{"A"}, []float64{0.01})

	if _, err := m.Train(data); !errors.Is(err, errNoFit) {
		t.Errorf("expected errNoFit, got %v", err)
	}
}

func TestTrendModel_Predict(t *testing.T) {
	m := newModel(t, map[string]any{"min_samples": 10, "ema_period": 5})
	data := series(30, []string{"UP", "DOWN"}, []float64{0.01, -0.01})
	model, err := m.Train(data)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	w, state, err := m.Predict(data, model, json.RawMessage(`"s"`))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if string(state) != `"s"` {
		t.Errorf("expected state passthrough, got %s", state)
	}
	if w.Rows() != 30 {
		t.Fatalf("expected 30 rows, got %d", w.Rows())
	}

	// EMA warm-up keeps the first rows flat
	for a := range w.Assets {
		if w.At(0, a) != 0 {
			t.Errorf("expected flat weight before warm-up, got %v", w.At(0, a))
		}
	}
	last := w.Rows() - 1
	if w.At(last, 0) != 0.5 || w.At(last, 1) != -0.5 {
		t.Errorf("expected [0.5 -0.5], got %v", w.Row(last))
	}
}

func TestTrendModel_PredictIsCausal(t *testing.T) {
	m := newModel(t, map[string]any{"min_samples": 10, "ema_period": 5})
	data := series(40, []string{"A", "B"}, []float64{0.01, -0.005})
	model, err := m.Train(data)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	full, _, err := m.Predict(data, model, nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	cut := data.Slice(time.Time{}, data.Times[24])
	partial, _, err := m.Predict(cut, model, nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	for tt := 0; tt < partial.Rows(); tt++ {
		for a := range partial.Assets {
			if full.At(tt, a) != partial.At(tt, a) {
				t.Fatalf("row %d asset %d differs: %v vs %v", tt, a, full.At(tt, a), partial.At(tt, a))
			}
		}
	}
}

func TestTrendModel_LongOnly(t *testing.T) {
	m := newModel(t, map[string]any{"min_samples": 10, "ema_period": 5, "long_only": true})
	data := series(30, []string{"UP", "DOWN"}, []float64{0.01, -0.01})
	model, err := m.Train(data)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	w, _, err := m.Predict(data, model, nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	last := w.Rows() - 1
	if w.At(last, 0) != 1 || w.At(last, 1) != 0 {
		t.Errorf("expected [1 0], got %v", w.Row(last))
	}
}

func TestTrendModel_PredictBadModel(t *testing.T) {
	m := New()
	data := series(5, []string{"A"}, []float64{0})
	if _, _, err := m.Predict(data, json.RawMessage("nope"), nil); err == nil {
		t.Error("expected error for corrupt model")
	}
}
