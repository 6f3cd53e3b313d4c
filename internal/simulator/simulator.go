// Package simulator turns a time × asset grid of target weights into the
// equity curve a portfolio would have realized trading at the open, with
// slippage, futures roll cost and illiquid-asset lockout.
package simulator

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
)

const (
	DefaultSlippageFraction = 0.05
	DefaultSlippagePeriod   = 14
)

// Options controls a simulation run.
type Options struct {
	// PerAsset simulates every asset as an independent pool starting at 1.
	PerAsset bool
	// Slippage is the per-share cost of trading; nil derives it from the
	// data's true range.
	Slippage         *grid.Panel
	SlippageFraction float64
	SlippagePeriod   int
	// RollSlippage is charged per share rolled; nil reuses Slippage.
	RollSlippage *grid.Panel
}

// DefaultOptions returns aggregate-mode options with derived slippage.
func DefaultOptions() Options {
	return Options{
		SlippageFraction: DefaultSlippageFraction,
		SlippagePeriod:   DefaultSlippagePeriod,
	}
}

// inputs bundles the aligned panels both simulation modes read.
type inputs struct {
	times  []time.Time
	assets []string

	weights  *grid.Panel
	open     *grid.Panel // raw, used for trade sizing
	openFF   *grid.Panel // forward-filled, used for valuation
	closeFF  *grid.Panel
	divs     *grid.Panel
	roll     *grid.Panel
	slip     *grid.Panel
	rollSlip *grid.Panel
	locked   *Mask
}

// Simulate replays weights against data. Weights decided on day t are traded
// at the open of day t+1, so the first simulated day carries no exposure.
func Simulate(data *grid.Grid, weights *grid.Panel, opts Options) (*Result, error) {
	if weights == nil {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("nil weights"))
	}
	if !weights.HasTimeAxis() {
		return nil, core.WrapError(core.ErrInvalidDimensions,
			fmt.Errorf("weights must be indexed by time and asset"))
	}
	if err := weights.Validate(); err != nil {
		return nil, core.WrapError(core.ErrInvalidDimensions, err)
	}
	if data.Empty() {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("no market data"))
	}
	for _, f := range []core.Field{core.FieldOpen, core.FieldClose} {
		if !data.Has(f) {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("missing field %q", f))
		}
	}
	if opts.SlippagePeriod <= 0 {
		opts.SlippagePeriod = DefaultSlippagePeriod
	}

	in, ok := prepare(data, weights, opts)
	if !ok {
		return emptyResult(opts.PerAsset), nil
	}

	var res *Result
	if opts.PerAsset {
		res = simulatePerAsset(in)
	} else {
		res = simulateAggregate(in)
	}
	res.Weights = in.weights
	res.Prices = in.closeFF
	res.Slippage = in.slip
	res.Locked = in.locked
	return res, nil
}

// prepare aligns every input onto the simulated window. It reports false
// when weights and data share no timestamps.
func prepare(data *grid.Grid, weights *grid.Panel, opts Options) (*inputs, bool) {
	if len(weights.Times) == 0 {
		return nil, false
	}
	wFirst, wLast := weights.Times[0], weights.Times[len(weights.Times)-1]
	if wLast.Before(data.First()) || wFirst.After(data.Last()) {
		return nil, false
	}
	sub := data.Slice(wFirst, time.Time{})
	if sub.Empty() {
		return nil, false
	}

	in := &inputs{times: sub.Times, assets: sub.Assets}

	aligned := weights.Reindex(sub.Times, sub.Assets)
	aligned.FillNaN(0)
	in.weights = aligned.Shift(1)
	in.weights.FillNaN(0)
	in.weights.Normalize()

	slip := opts.Slippage
	if slip == nil {
		slip = DeriveSlippage(data, opts.SlippageFraction, opts.SlippagePeriod)
	}
	in.slip = slip.Reindex(sub.Times, sub.Assets)
	if opts.RollSlippage != nil {
		in.rollSlip = opts.RollSlippage.Reindex(sub.Times, sub.Assets)
	} else {
		in.rollSlip = in.slip
	}

	in.open = sub.Field(core.FieldOpen)
	in.openFF = in.open.Clone()
	in.openFF.ForwardFill()
	in.closeFF = sub.Field(core.FieldClose).Clone()
	in.closeFF.ForwardFill()
	if p := sub.Field(core.FieldDividends); p != nil {
		in.divs = p.Clone()
		in.divs.FillNaN(0)
	}
	if p := sub.Field(core.FieldRollCost); p != nil {
		in.roll = p.Clone()
		in.roll.FillNaN(0)
	}

	in.locked = LiquidityMask(sub, in.weights, in.slip)
	return in, true
}

func simulateAggregate(in *inputs) *Result {
	nT, nA := len(in.times), len(in.assets)
	shares := grid.NewPanel(in.times, in.assets)
	shares.FillNaN(0)
	equity := grid.NewPanel(in.times, []string{PortfolioColumn})
	returns := grid.NewPanel(in.times, []string{PortfolioColumn})
	equity.Set(0, 0, 1)
	returns.Set(0, 0, 0)

	held := make([]float64, nA)
	prev := make([]float64, nA)
	afterBuy := 1.0

	for t := 1; t < nT; t++ {
		copy(prev, held)

		beforeBuy := afterBuy
		for a := range held {
			beforeBuy += in.overnight(t, a) * held[a]
		}

		row := in.weights.Row(t)
		capital := beforeBuy
		var wAll, wUnlocked float64
		for a, w := range row {
			wAll += math.Abs(w)
			if in.locked.Locked(t, a) {
				if held[a] != 0 {
					capital -= in.openFF.At(t, a) * math.Abs(held[a])
				}
				continue
			}
			wUnlocked += math.Abs(w)
		}
		wOperable := wUnlocked + math.Max(0, 1-wAll)

		afterBuy = beforeBuy
		if wOperable > grid.Epsilon {
			var cost float64
			for a, w := range row {
				if in.locked.Locked(t, a) {
					continue
				}
				target := capital * w / (wOperable * in.open.At(t, a))
				cost += in.slip.At(t, a) * math.Abs(target-held[a])
				held[a] = target
			}
			afterBuy -= cost
		}
		afterBuy -= in.rollCost(t, held, prev)

		tonight := afterBuy
		for a := range held {
			tonight += in.intraday(t, a) * held[a]
		}
		equity.Set(t, 0, tonight)
		returns.Set(t, 0, ratio(tonight, equity.At(t-1, 0)))
		copy(shares.Row(t), held)
	}

	return &Result{
		Times:   in.times,
		Assets:  in.assets,
		Shares:  shares,
		Equity:  equity,
		Returns: returns,
	}
}

func simulatePerAsset(in *inputs) *Result {
	nT, nA := len(in.times), len(in.assets)
	shares := grid.NewPanel(in.times, in.assets)
	shares.FillNaN(0)
	equity := grid.NewPanel(in.times, in.assets)
	returns := grid.NewPanel(in.times, in.assets)
	for a := 0; a < nA; a++ {
		equity.Set(0, a, 1)
		returns.Set(0, a, 0)
	}

	held := make([]float64, nA)
	prev := make([]float64, nA)
	afterBuy := make([]float64, nA)
	for a := range afterBuy {
		afterBuy[a] = 1
	}

	for t := 1; t < nT; t++ {
		copy(prev, held)
		for a := 0; a < nA; a++ {
			beforeBuy := afterBuy[a] + in.overnight(t, a)*held[a]
			afterBuy[a] = beforeBuy
			if !in.locked.Locked(t, a) {
				target := beforeBuy * in.weights.At(t, a) / in.open.At(t, a)
				afterBuy[a] -= in.slip.At(t, a) * math.Abs(target-held[a])
				held[a] = target
			}
			afterBuy[a] -= in.rollCostAt(t, a, held[a], prev[a])

			tonight := afterBuy[a] + in.intraday(t, a)*held[a]
			equity.Set(t, a, tonight)
			returns.Set(t, a, ratio(tonight, equity.At(t-1, a)))
		}
		copy(shares.Row(t), held)
	}

	return &Result{
		Times:    in.times,
		Assets:   in.assets,
		PerAsset: true,
		Shares:   shares,
		Equity:   equity,
		Returns:  returns,
	}
}

// overnight is the per-share value change from the previous open to today's
// open, dividends included.
func (in *inputs) overnight(t, a int) float64 {
	d := in.openFF.At(t, a) - in.openFF.At(t-1, a)
	if in.divs != nil {
		d += in.divs.At(t, a)
	}
	if !grid.IsFinite(d) {
		return 0
	}
	return d
}

// intraday is the per-share value change from today's open to its close.
func (in *inputs) intraday(t, a int) float64 {
	d := in.closeFF.At(t, a) - in.openFF.At(t, a)
	if !grid.IsFinite(d) {
		return 0
	}
	return d
}

func (in *inputs) rollCost(t int, held, prev []float64) float64 {
	if in.roll == nil {
		return 0
	}
	var cost float64
	for a := range held {
		cost += in.rollCostAt(t, a, held[a], prev[a])
	}
	return cost
}

// rollCostAt charges positions that keep their direction across a contract
// roll: sign*overlap*roll + overlap*rollSlippage.
func (in *inputs) rollCostAt(t, a int, cur, prev float64) float64 {
	if in.roll == nil || cur == 0 || prev == 0 || (cur > 0) != (prev > 0) {
		return 0
	}
	overlap := math.Min(math.Abs(cur), math.Abs(prev))
	sign := 1.0
	if cur < 0 {
		sign = -1
	}
	rs := in.rollSlip.At(t, a)
	if !grid.IsFinite(rs) {
		rs = 0
	}
	return sign*overlap*in.roll.At(t, a) + overlap*rs
}

func ratio(cur, prev float64) float64 {
	r := cur/prev - 1
	if !grid.IsFinite(r) {
		return 0
	}
	return r
}
