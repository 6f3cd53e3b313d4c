package collector

import (
	"context"
	"sort"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
)

// Config holds collector configuration
type Config struct {
	Symbols  []string
	Interval string
	Extra    map[string]any
}

// Source loads a time-series grid for one asset class. Times are ascending
// and, where the market has the notion, the grid carries an is_liquid field.
type Source interface {
	Load(ctx context.Context, class core.AssetClass, from, to time.Time) (*grid.Grid, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, class core.AssetClass, from, to time.Time) (*grid.Grid, error)

func (f SourceFunc) Load(ctx context.Context, class core.AssetClass, from, to time.Time) (*grid.Grid, error) {
	return f(ctx, class, from, to)
}

// ToGrid pivots bars into a grid with one column per symbol, in the order
// symbols first appear. The is_liquid field is added when any bar carries
// the flag. A later bar for the same symbol and time replaces an earlier one.
func ToGrid(bars []core.OHLCV) *grid.Grid {
	var assets []string
	col := make(map[string]int)
	rowOf := make(map[int64]int)
	var times []time.Time
	liquid := false
	for _, b := range bars {
		if _, ok := col[b.Symbol]; !ok {
			col[b.Symbol] = len(assets)
			assets = append(assets, b.Symbol)
		}
		key := b.Time.UnixNano()
		if _, ok := rowOf[key]; !ok {
			rowOf[key] = len(times)
			times = append(times, b.Time.UTC())
		}
		if b.IsLiquid != nil {
			liquid = true
		}
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i, t := range times {
		rowOf[t.UnixNano()] = i
	}

	fields := append(append([]core.Field(nil), core.OHLCVFields...), core.FieldDividends)
	if liquid {
		fields = append(fields, core.FieldIsLiquid)
	}
	g := grid.New(times, assets, fields...)
	for _, b := range bars {
		t, a := rowOf[b.Time.UnixNano()], col[b.Symbol]
		g.Field(core.FieldOpen).Set(t, a, b.Open)
		g.Field(core.FieldHigh).Set(t, a, b.High)
		g.Field(core.FieldLow).Set(t, a, b.Low)
		g.Field(core.FieldClose).Set(t, a, b.Close)
		g.Field(core.FieldVolume).Set(t, a, b.Volume)
		g.Field(core.FieldDividends).Set(t, a, b.Dividends)
		if liquid && b.IsLiquid != nil {
			v := 0.0
			if *b.IsLiquid {
				v = 1
			}
			g.Field(core.FieldIsLiquid).Set(t, a, v)
		}
	}
	return g
}
