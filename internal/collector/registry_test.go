package collector

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	called := false
	r.Register(core.AssetStocks, SourceFunc(func(ctx context.Context, class core.AssetClass, from, to time.Time) (*grid.Grid, error) {
		called = true
		return grid.New(nil, nil), nil
	}))

	if _, ok := r.Get(core.AssetStocks); !ok {
		t.Fatal("expected to find registered source")
	}
	if _, err := r.Load(context.Background(), core.AssetStocks, time.Time{}, time.Time{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected source to be called")
	}
	if len(r.Classes()) != 1 {
		t.Errorf("expected 1 class, got %d", len(r.Classes()))
	}
}

func TestRegistry_UnknownClass(t *testing.T) {
	r := NewRegistry()
	_, err := r.Load(context.Background(), core.AssetFutures, time.Time{}, time.Time{})
	if !errors.Is(err, core.ErrSourceFailed) {
		t.Errorf("expected ErrSourceFailed, got %v", err)
	}
}

func TestToGrid(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	yes, no := true, false
	bars := []core.OHLCV{
		{Symbol: "B", Time: day(2), Open: 20, High: 21, Low: 19, Close: 20.5, Volume: 5, IsLiquid: &no},
		{Symbol: "A", Time: day(1), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1, IsLiquid: &yes},
		{Symbol: "A", Time: day(2), Open: 11, High: 12, Low: 10, Close: 11.5, Volume: 2, Dividends: 0.1},
	}

	g := ToGrid(bars)

	if g.Len() != 2 || len(g.Assets) != 2 {
		t.Fatalf("expected 2x2 grid, got %dx%d", g.Len(), len(g.Assets))
	}
	if g.Assets[0] != "B" || g.Assets[1] != "A" {
		t.Errorf("expected assets in first-seen order, got %v", g.Assets)
	}
	if !g.Times[0].Equal(day(1)) {
		t.Errorf("expected ascending times, got %v", g.Times)
	}

	closes := g.Field(core.FieldClose)
	if !math.IsNaN(closes.At(0, 0)) {
		t.Errorf("expected missing B bar on day 1 to be NaN, got %v", closes.At(0, 0))
	}
	if closes.At(1, 1) != 11.5 {
		t.Errorf("expected A close 11.5, got %v", closes.At(1, 1))
	}
	if g.Field(core.FieldDividends).At(1, 1) != 0.1 {
		t.Errorf("expected dividend 0.1, got %v", g.Field(core.FieldDividends).At(1, 1))
	}

	liquid := g.Field(core.FieldIsLiquid)
	if liquid == nil {
		t.Fatal("expected is_liquid field")
	}
	if liquid.At(1, 0) != 0 || liquid.At(0, 1) != 1 {
		t.Errorf("unexpected liquidity flags: %v", liquid.Values)
	}
	if !math.IsNaN(liquid.At(1, 1)) {
		t.Errorf("expected unflagged bar to stay NaN, got %v", liquid.At(1, 1))
	}
}
