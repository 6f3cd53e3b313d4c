// Package clean repairs strategy output before it is simulated or submitted.
package clean

import (
	"fmt"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
)

// Report counts the fixes applied by Clean.
type Report struct {
	MissedDates   int // data dates without an output row, forward-filled
	UnknownAssets int // output columns absent from the data
	Illiquid      int // non-zero weights on untradable cells
	NonFinite     int // NaN or infinite weights
	Normalized    int // rows scaled down to unit gross exposure
}

// Fixes returns the total number of corrections.
func (r Report) Fixes() int {
	return r.MissedDates + r.UnknownAssets + r.Illiquid + r.NonFinite + r.Normalized
}

// Clean aligns weights onto the data grid from the first output timestamp
// to the end of the data and enforces the submission constraints: finite
// values, no exposure to illiquid assets and Σ|w| <= 1 on every day.
func Clean(weights *grid.Panel, data *grid.Grid) (*grid.Panel, Report, error) {
	var rep Report
	if weights == nil {
		return nil, rep, core.WrapError(core.ErrInvalidInput, fmt.Errorf("nil weights"))
	}
	if !weights.HasTimeAxis() {
		return nil, rep, core.WrapError(core.ErrInvalidDimensions,
			fmt.Errorf("weights must be indexed by time and asset"))
	}
	if err := weights.Validate(); err != nil {
		return nil, rep, core.WrapError(core.ErrInvalidDimensions, err)
	}
	if data.Empty() {
		return nil, rep, core.WrapError(core.ErrInvalidInput, fmt.Errorf("no market data"))
	}

	for _, a := range weights.Assets {
		if data.AssetIndex(a) < 0 {
			rep.UnknownAssets++
		}
	}

	if len(weights.Times) == 0 {
		return grid.NewPanel([]time.Time{}, data.Assets), rep, nil
	}
	sub := data.Slice(weights.Times[0], time.Time{})
	out := weights.Reindex(sub.Times, sub.Assets)
	present := make([]bool, len(sub.Assets))
	for a, asset := range sub.Assets {
		present[a] = weights.AssetIndex(asset) >= 0
	}

	// Missed dates repeat the previous raw output row; liquidity is applied
	// per day afterwards.
	for t, ts := range sub.Times {
		if weights.TimeIndex(ts) >= 0 {
			continue
		}
		if t > 0 {
			copy(out.Row(t), out.Row(t-1))
		} else {
			zero(out.Row(t))
		}
		rep.MissedDates++
	}

	closes := sub.Field(core.FieldClose)
	liquid := sub.Field(core.FieldIsLiquid)
	for t := range sub.Times {
		row := out.Row(t)
		for a, w := range row {
			if !grid.IsFinite(w) {
				row[a] = 0
				if present[a] {
					rep.NonFinite++
				}
			}
			if row[a] != 0 && !tradable(closes, liquid, t, a) {
				row[a] = 0
				rep.Illiquid++
			}
		}
	}
	rep.Normalized = out.Normalize()
	return out, rep, nil
}

func tradable(closes, liquid *grid.Panel, t, a int) bool {
	if closes != nil && !grid.IsFinite(closes.At(t, a)) {
		return false
	}
	if liquid != nil {
		if l := liquid.At(t, a); grid.IsFinite(l) && l <= 0 {
			return false
		}
	}
	return true
}

func zero(row []float64) {
	for i := range row {
		row[i] = 0
	}
}
