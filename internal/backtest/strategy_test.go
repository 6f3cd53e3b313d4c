package backtest

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
)

func TestValidateWeights(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name    string
		weights *grid.Panel
		want    error
	}{
		{"vector", grid.Vector([]string{"A"}, []float64{1}), nil},
		{"time panel of NaN", grid.NewPanel([]time.Time{day(0)}, []string{"A"}).AtTime(day(0)), core.ErrNonFinite},
		{"nil", nil, core.ErrNilWeights},
		{"no assets", grid.Vector(nil, nil), core.ErrWrongShape},
		{"short buffer", grid.Vector([]string{"A", "B"}, []float64{1}), core.ErrWrongShape},
		{"all NaN", grid.Vector([]string{"A", "B"}, []float64{nan, math.Inf(1)}), core.ErrNonFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeights(tt.weights)
			if tt.want == nil {
				if err != nil {
					t.Errorf("ValidateWeights() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateWeights() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStrategy_RunRecoversPanic(t *testing.T) {
	s := Stateless(func(data *grid.Grid) (*grid.Panel, error) {
		panic("index out of range")
	})

	out := s.Run(dailyData(3), nil)
	if out.OK() {
		t.Fatal("expected error from panicking strategy")
	}
	if !strings.Contains(out.Err.Error(), "index out of range") {
		t.Errorf("error = %v, want panic message", out.Err)
	}
}

func TestStrategy_StatelessPassesStateThrough(t *testing.T) {
	s := Stateless(longOnly)

	out := s.Run(dailyData(3), json.RawMessage(`"keep"`))
	if !out.OK() {
		t.Fatalf("Run() error = %v", out.Err)
	}
	if string(out.State) != `"keep"` {
		t.Errorf("State = %s, want \"keep\"", out.State)
	}
}

func TestStrategy_KindMismatch(t *testing.T) {
	stateless := Stateless(longOnly)
	if out := stateless.Train(dailyData(3)); out.OK() {
		t.Error("expected Train to fail for a stateless strategy")
	}

	model := ModelBased(
		func(*grid.Grid) (json.RawMessage, error) { return nil, nil },
		func(*grid.Grid, json.RawMessage, json.RawMessage) (*grid.Panel, json.RawMessage, error) { return nil, nil, nil },
	)
	if out := model.Run(dailyData(3), nil); out.OK() {
		t.Error("expected Run to fail for a model strategy")
	}
	if out := model.Train(dailyData(3)); out.OK() {
		t.Error("expected Train to fail without a model")
	}
	if out := model.Predict(dailyData(3), nil, nil); !errors.Is(out.Err, core.ErrNilWeights) {
		t.Errorf("Predict() error = %v, want ErrNilWeights", out.Err)
	}
}

func TestStrategy_Name(t *testing.T) {
	if got := Stateful(nil).Name(); got != "stateful" {
		t.Errorf("Name() = %q, want stateful", got)
	}
	if got := Stateless(nil).Named("ma").Name(); got != "ma" {
		t.Errorf("Name() = %q, want ma", got)
	}
}

func TestCompareWeights(t *testing.T) {
	full := grid.NewPanel([]time.Time{day(0), day(1), day(2)}, []string{"A", "B"})
	copy(full.Values, []float64{0.5, 0.5, 0.4, 0.6, 0.3, 0.7})
	partial := grid.NewPanel([]time.Time{day(0), day(1)}, []string{"A"})
	copy(partial.Values, []float64{0.5, 0.45})

	rep := CompareWeights(full, partial, 1e-7)

	if rep.Compared != 4 {
		t.Errorf("Compared = %d, want 4", rep.Compared)
	}
	if len(rep.Violations) != 3 {
		t.Fatalf("Violations = %d, want 3", len(rep.Violations))
	}
	if v := rep.Violations[0]; v.Asset != "B" || !v.Time.Equal(day(0)) || v.Truncated != 0 {
		t.Errorf("first violation = %+v", v)
	}
	if math.Abs(rep.MaxDiff-0.6) > 1e-12 {
		t.Errorf("MaxDiff = %v, want 0.6", rep.MaxDiff)
	}
}
