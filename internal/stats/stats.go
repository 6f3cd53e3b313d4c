// Package stats derives rolling performance and risk metrics from a
// simulation result. Every value at time t depends only on data up to t.
package stats

import (
	"fmt"
	"math"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/simulator"
	"gonum.org/v1/gonum/stat"
)

// Metric names a statistics series.
type Metric string

const (
	MetricEquity         Metric = "equity"
	MetricRelativeReturn Metric = "relative_return"
	MetricVolatility     Metric = "volatility"
	MetricUnderwater     Metric = "underwater"
	MetricMaxDrawdown    Metric = "max_drawdown"
	MetricMeanReturn     Metric = "mean_return"
	MetricSharpe         Metric = "sharpe_ratio"
	MetricBias           Metric = "bias"
	MetricInstruments    Metric = "instruments"
	MetricTurnover       Metric = "avg_turnover"
	MetricHoldingTime    Metric = "avg_holding_time"
)

// Metrics lists every metric in report order.
var Metrics = []Metric{
	MetricEquity, MetricRelativeReturn, MetricVolatility, MetricUnderwater,
	MetricMaxDrawdown, MetricMeanReturn, MetricSharpe, MetricBias,
	MetricInstruments, MetricTurnover, MetricHoldingTime,
}

const DefaultMinPeriods = 2

// Options controls the rolling windows.
type Options struct {
	// MaxPeriods is the window length in samples; 0 uses an expanding window.
	MaxPeriods int
	// MinPeriods is the number of samples needed before a windowed metric
	// is reported.
	MinPeriods int
	// PointsPerYear annualizes volatility and mean return; 0 infers it.
	PointsPerYear float64
	AssetClass    core.AssetClass
}

// DefaultOptions returns expanding-window options for equities.
func DefaultOptions() Options {
	return Options{MinPeriods: DefaultMinPeriods, AssetClass: core.AssetStocks}
}

// Calc computes every metric for each equity column of res.
func Calc(res *simulator.Result, opts Options) (*Frame, error) {
	if res.Empty() {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("empty simulation result"))
	}
	if opts.MinPeriods <= 0 {
		opts.MinPeriods = DefaultMinPeriods
	}
	if opts.MaxPeriods < 0 {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("max periods must be >= 0, got %d", opts.MaxPeriods))
	}
	if opts.AssetClass == "" {
		opts.AssetClass = core.AssetStocks
	}
	ppy := opts.PointsPerYear
	if ppy <= 0 {
		ppy = PointsPerYear(res.Times, opts.AssetClass)
	}

	c := &calculator{res: res, opts: opts, ppy: ppy}
	f := newFrame(res.Times, res.EquityColumns(), ppy)
	for col := range f.Columns {
		c.returnMetrics(f, col)
		c.positionMetrics(f, col)
	}
	return f, nil
}

type calculator struct {
	res  *simulator.Result
	opts Options
	ppy  float64
}

// window returns the first index of the window ending at t.
func (c *calculator) window(t int) int {
	if c.opts.MaxPeriods == 0 {
		return 0
	}
	return max(0, t-c.opts.MaxPeriods+1)
}

func (c *calculator) returnMetrics(f *Frame, col int) {
	returns := c.res.Returns.Column(col)
	n := len(returns)

	equity := make([]float64, n)
	growth := make([]float64, n)
	acc := 1.0
	for t, r := range returns {
		acc *= 1 + r
		equity[t] = acc
		growth[t] = 1 + r
	}

	peak := rollingMax(equity, c.opts.MaxPeriods)
	underwater := make([]float64, n)
	for t := range equity {
		underwater[t] = equity[t]/peak[t] - 1
	}
	drawdown := rollingMin(underwater, c.opts.MaxPeriods)

	for t := 0; t < n; t++ {
		f.set(MetricEquity, t, col, equity[t])
		f.set(MetricRelativeReturn, t, col, returns[t])
		f.set(MetricUnderwater, t, col, underwater[t])
		f.set(MetricMaxDrawdown, t, col, drawdown[t])

		lo := c.window(t)
		if t-lo+1 < c.opts.MinPeriods {
			continue
		}
		_, variance := stat.PopMeanVariance(returns[lo:t+1], nil)
		vol := math.Sqrt(variance * c.ppy)
		mean := math.Pow(stat.GeometricMean(growth[lo:t+1], nil), c.ppy) - 1
		f.set(MetricVolatility, t, col, vol)
		f.set(MetricMeanReturn, t, col, mean)
		f.set(MetricSharpe, t, col, divide(mean, vol))
	}
}

// positionMetrics fills the metrics derived from weights and shares. In
// aggregate mode column 0 spans every asset; in per-asset mode each column
// covers its own asset.
func (c *calculator) positionMetrics(f *Frame, col int) {
	assets := c.assetsOf(col)
	n := len(c.res.Times)

	turnover := c.dailyTurnover(col, assets)
	ledger := newHoldingLedger(c.res.Times, assets, c.res.Shares, c.res.Prices)
	held := make(map[int]struct{})

	for t := 0; t < n; t++ {
		var net, gross float64
		for _, a := range assets {
			w := c.res.Weights.At(t, a)
			net += w
			gross += math.Abs(w)
			if c.res.Shares.At(t, a) != 0 {
				held[a] = struct{}{}
			}
		}
		f.set(MetricBias, t, col, divide(net, gross))

		if c.res.PerAsset {
			f.set(MetricInstruments, t, col, 1)
		} else {
			f.set(MetricInstruments, t, col, float64(len(held)))
		}

		f.set(MetricHoldingTime, t, col, ledger.step(t))

		if lo := c.window(t); t-lo+1 >= c.opts.MinPeriods {
			f.set(MetricTurnover, t, col, stat.Mean(turnover[lo:t+1], nil))
		}
	}
}

func (c *calculator) assetsOf(col int) []int {
	if c.res.PerAsset {
		return []int{col}
	}
	out := make([]int, len(c.res.Assets))
	for i := range out {
		out[i] = i
	}
	return out
}

// dailyTurnover returns Σ|Δ(shares × price / equity)| per day.
func (c *calculator) dailyTurnover(col int, assets []int) []float64 {
	n := len(c.res.Times)
	out := make([]float64, n)
	prev := make([]float64, len(assets))
	for t := 0; t < n; t++ {
		equity := c.res.Equity.At(t, col)
		var sum float64
		for i, a := range assets {
			exposure := c.res.Shares.At(t, a) * c.res.Prices.At(t, a) / equity
			if !grid.IsFinite(exposure) {
				exposure = 0
			}
			sum += math.Abs(exposure - prev[i])
			prev[i] = exposure
		}
		out[t] = sum
	}
	return out
}

func divide(num, den float64) float64 {
	if den == 0 || !grid.IsFinite(den) {
		return math.NaN()
	}
	return num / den
}
