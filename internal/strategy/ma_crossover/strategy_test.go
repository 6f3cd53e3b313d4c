package ma_crossover

import (
	"math"
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/strategy"
)

func closes(series map[string][]float64, assets ...string) *grid.Grid {
	n := len(series[assets[0]])
	times := make([]time.Time, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range times {
		times[i] = start.AddDate(0, 0, i)
	}
	g := grid.New(times, assets, core.FieldClose)
	p := g.Field(core.FieldClose)
	for a, name := range assets {
		for t, v := range series[name] {
			p.Set(t, a, v)
		}
	}
	return g
}

func TestMACrossover_Name(t *testing.T) {
	s := New(5, 20)
	if s.Name() != "ma_crossover" {
		t.Errorf("expected name 'ma_crossover', got '%s'", s.Name())
	}
	if s.Backtest().Kind() != backtest.KindStateless {
		t.Errorf("expected stateless strategy, got %s", s.Backtest().Kind())
	}
}

func TestMACrossover_Weights(t *testing.T) {
	s := New(2, 4)
	data := closes(map[string][]float64{
		"UP":   {1, 2, 3, 4, 5, 6},
		"DOWN": {6, 5, 4, 3, 2, 1},
		"NEW":  {0, 0, 0, 0, 0, 1},
	}, "UP", "DOWN", "NEW")
	nan := data.Field(core.FieldClose)
	for i := 0; i < 5; i++ {
		nan.Set(i, 2, math.NaN())
	}

	w, err := s.Weights(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.HasTimeAxis() {
		t.Fatal("expected a vector output")
	}

	expected := []float64{0.5, -0.5, 0}
	for a, want := range expected {
		if got := w.At(0, a); got != want {
			t.Errorf("asset %s: expected %v, got %v", w.Assets[a], want, got)
		}
	}
}

func TestMACrossover_LongOnly(t *testing.T) {
	s := New(2, 4)
	if err := s.Init(strategy.Config{Params: map[string]any{"long_only": true}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data := closes(map[string][]float64{
		"UP":   {1, 2, 3, 4, 5, 6},
		"DOWN": {6, 5, 4, 3, 2, 1},
	}, "UP", "DOWN")
	w, err := s.Weights(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.At(0, 0) != 1 || w.At(0, 1) != 0 {
		t.Errorf("expected [1 0], got %v", w.Row(0))
	}
}

func TestMACrossover_Init(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{"defaults", nil, false},
		{"yaml floats", map[string]any{"fast_period": 10.0, "slow_period": 30.0}, false},
		{"fast above slow", map[string]any{"fast_period": 40}, true},
		{"bad type", map[string]any{"slow_period": "long"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(5, 20)
			err := s.Init(strategy.Config{Params: tt.params})
			if (err != nil) != tt.wantErr {
				t.Errorf("Init() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMACrossover_NotEnoughData(t *testing.T) {
	s := New(5, 20)
	data := closes(map[string][]float64{"A": {1, 2, 3}}, "A")

	w, err := s.Weights(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.At(0, 0) != 0 {
		t.Errorf("expected flat weight, got %v", w.At(0, 0))
	}
}
