package simulator

import (
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/indicator"
)

// DeriveSlippage estimates the per-share trading cost of every asset as
// fraction × the rolling mean true range over period samples.
func DeriveSlippage(data *grid.Grid, fraction float64, period int) *grid.Panel {
	out := grid.NewPanel(data.Times, data.Assets)
	if fraction <= 0 {
		out.FillNaN(0)
		return out
	}

	high, low := data.Field(core.FieldHigh), data.Field(core.FieldLow)
	closes := data.Field(core.FieldClose)
	for a := range data.Assets {
		var h, l []float64
		if high != nil && low != nil {
			h, l = high.Column(a), low.Column(a)
		}
		atr := indicator.RollingMean(indicator.TrueRange(h, l, closes.Column(a)), period, 1)
		for t, v := range atr {
			out.Set(t, a, v*fraction)
		}
	}
	return out
}
