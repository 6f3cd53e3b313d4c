package simulator

import (
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
)

// Mask flags (time, asset) cells whose asset cannot be traded that day.
type Mask struct {
	Times  []time.Time
	Assets []string
	locked []bool
}

func newMask(times []time.Time, assets []string) *Mask {
	return &Mask{Times: times, Assets: assets, locked: make([]bool, len(times)*len(assets))}
}

// Locked reports whether asset a is untradable at row t.
func (m *Mask) Locked(t, a int) bool {
	return m.locked[t*len(m.Assets)+a]
}

// LockedDays counts locked rows of asset a.
func (m *Mask) LockedDays(a int) int {
	n := 0
	for t := range m.Times {
		if m.Locked(t, a) {
			n++
		}
	}
	return n
}

// LiquidityMask derives the lockout mask. All panels must share the data
// grid's axes; weights and slippage may be nil to skip their checks.
//
// An asset is locked when its open or close is not finite, its open is
// below grid.Epsilon, its weight or slippage rate is not finite, or the
// is_liquid field flags it explicitly (finite and <= 0).
func LiquidityMask(data *grid.Grid, weights, slippage *grid.Panel) *Mask {
	m := newMask(data.Times, data.Assets)
	open := data.Field(core.FieldOpen)
	closes := data.Field(core.FieldClose)
	liquid := data.Field(core.FieldIsLiquid)

	for t := range data.Times {
		for a := range data.Assets {
			o, c := open.At(t, a), closes.At(t, a)
			ok := grid.IsFinite(o) && grid.IsFinite(c) && o > grid.Epsilon
			if ok && weights != nil {
				ok = grid.IsFinite(weights.At(t, a))
			}
			if ok && slippage != nil {
				ok = grid.IsFinite(slippage.At(t, a))
			}
			if ok && liquid != nil {
				if l := liquid.At(t, a); grid.IsFinite(l) && l <= 0 {
					ok = false
				}
			}
			m.locked[t*len(data.Assets)+a] = !ok
		}
	}
	return m
}
