package stats

import (
	"math"
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/simulator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func days(n int) []time.Time {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.AddDate(0, 0, i)
	}
	return out
}

func panelOf(times []time.Time, assets []string, rows [][]float64) *grid.Panel {
	p := grid.NewPanel(times, assets)
	for t, row := range rows {
		copy(p.Row(t), row)
	}
	return p
}

// aggregate builds a single-asset aggregate result with constant price 10.
func aggregate(returns, shares []float64) *simulator.Result {
	n := len(returns)
	times := days(n)
	assets := []string{"A"}
	col := []string{simulator.PortfolioColumn}

	res := &simulator.Result{
		Times:   times,
		Assets:  assets,
		Weights: grid.NewPanel(times, assets),
		Shares:  grid.NewPanel(times, assets),
		Prices:  grid.NewPanel(times, assets),
		Equity:  grid.NewPanel(times, col),
		Returns: grid.NewPanel(times, col),
	}
	eq := 1.0
	for t := 0; t < n; t++ {
		eq *= 1 + returns[t]
		res.Returns.Set(t, 0, returns[t])
		res.Equity.Set(t, 0, eq)
		res.Shares.Set(t, 0, shares[t])
		res.Prices.Set(t, 0, 10)
		res.Weights.Set(t, 0, shares[t]*10)
	}
	return res
}

func TestCalc_FlatReturnsSharpeIsMissing(t *testing.T) {
	res := aggregate(make([]float64, 10), make([]float64, 10))

	f, err := Calc(res, DefaultOptions())
	require.NoError(t, err)

	for i := 1; i < 10; i++ {
		assert.Equal(t, 0.0, f.Get(MetricVolatility).At(i, 0))
		assert.True(t, math.IsNaN(f.Get(MetricSharpe).At(i, 0)), "day %d", i)
		assert.True(t, math.IsNaN(f.Get(MetricBias).At(i, 0)))
		assert.True(t, math.IsNaN(f.Get(MetricHoldingTime).At(i, 0)))
	}
	assert.Equal(t, []float64{1}, f.Last(MetricEquity))
	assert.Equal(t, []float64{0}, f.Last(MetricInstruments))
	assert.Equal(t, []float64{0}, f.Last(MetricTurnover))
}

func TestCalc_EquityAndDrawdown(t *testing.T) {
	res := aggregate([]float64{0, 0.1, -0.5, 0.2}, make([]float64, 4))

	f, err := Calc(res, DefaultOptions())
	require.NoError(t, err)

	eq := f.Get(MetricEquity)
	assert.InDeltaSlice(t, []float64{1, 1.1, 0.55, 0.66}, eq.Column(0), 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0, -0.5, -0.4}, f.Get(MetricUnderwater).Column(0), 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0, -0.5, -0.5}, f.Get(MetricMaxDrawdown).Column(0), 1e-12)
}

func TestCalc_RollingWindowForgetsOldPeak(t *testing.T) {
	res := aggregate([]float64{0, 0.1, -0.5, 0.2, 0.1}, make([]float64, 5))

	opts := DefaultOptions()
	opts.MaxPeriods = 2
	f, err := Calc(res, opts)
	require.NoError(t, err)

	uw := f.Get(MetricUnderwater).Column(0)
	assert.InDelta(t, -0.5, uw[2], 1e-12)
	assert.InDelta(t, 0.0, uw[3], 1e-12)
	assert.InDelta(t, -0.5, f.Get(MetricMaxDrawdown).At(3, 0), 1e-12)
	assert.InDelta(t, 0.0, f.Get(MetricMaxDrawdown).At(4, 0), 1e-12)
}

func TestCalc_VolatilityAndMeanReturn(t *testing.T) {
	res := aggregate([]float64{0, 0.1}, make([]float64, 2))

	opts := DefaultOptions()
	opts.PointsPerYear = 1
	f, err := Calc(res, opts)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(f.Get(MetricVolatility).At(0, 0)), "below min periods")
	vol := f.Get(MetricVolatility).At(1, 0)
	mean := f.Get(MetricMeanReturn).At(1, 0)
	assert.InDelta(t, 0.05, vol, 1e-12)
	assert.InDelta(t, math.Sqrt(1.1)-1, mean, 1e-12)
	assert.InDelta(t, mean/vol, f.Get(MetricSharpe).At(1, 0), 1e-12)
	assert.Equal(t, 1.0, f.PointsPerYear)
}

func TestCalc_BiasAndInstruments(t *testing.T) {
	times := days(4)
	assets := []string{"A", "B"}
	col := []string{simulator.PortfolioColumn}
	flat := [][]float64{{10, 10}, {10, 10}, {10, 10}, {10, 10}}
	res := &simulator.Result{
		Times:   times,
		Assets:  assets,
		Weights: panelOf(times, assets, [][]float64{{0, 0}, {0.5, -0.25}, {0.5, 0}, {0.2, 0.2}}),
		Shares:  panelOf(times, assets, [][]float64{{0, 0}, {0.05, 0}, {0.05, 0}, {0, 0.02}}),
		Prices:  panelOf(times, assets, flat),
		Equity:  panelOf(times, col, [][]float64{{1}, {1}, {1}, {1}}),
		Returns: panelOf(times, col, [][]float64{{0}, {0}, {0}, {0}}),
	}

	f, err := Calc(res, DefaultOptions())
	require.NoError(t, err)

	bias := f.Get(MetricBias).Column(0)
	assert.True(t, math.IsNaN(bias[0]))
	assert.InDelta(t, 1.0/3, bias[1], 1e-12)
	assert.InDelta(t, 1.0, bias[2], 1e-12)
	assert.Equal(t, []float64{0, 1, 1, 2}, f.Get(MetricInstruments).Column(0))
}

func TestCalc_Turnover(t *testing.T) {
	res := aggregate(make([]float64, 4), []float64{0, 0.1, 0.1, 0})

	f, err := Calc(res, DefaultOptions())
	require.NoError(t, err)

	turnover := f.Get(MetricTurnover).Column(0)
	assert.True(t, math.IsNaN(turnover[0]))
	assert.InDeltaSlice(t, []float64{0.5, 1.0 / 3, 0.5}, turnover[1:], 1e-12)
}

func TestCalc_HoldingTime(t *testing.T) {
	tests := []struct {
		name   string
		shares []float64
		want   []float64
	}{
		{"hold then exit", []float64{0, 0.1, 0.1, 0.1, 0}, []float64{1, 2, 3}},
		{"partial unwind", []float64{0, 0.2, 0.1, 0.1}, []float64{1, 1.5}},
		{"growth reopens leg", []float64{0, 0.1, 0.2}, []float64{1.0 / 3}},
		{"growth then hold", []float64{0, 0.1, 0.2, 0.2, 0.2}, []float64{1.0 / 3, 1, 5.0 / 3}},
		{"sign flip closes", []float64{0, 0.1, -0.1}, []float64{0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := aggregate(make([]float64, len(tt.shares)), tt.shares)
			f, err := Calc(res, DefaultOptions())
			require.NoError(t, err)

			got := f.Get(MetricHoldingTime).Column(0)
			assert.True(t, math.IsNaN(got[0]))
			assert.Equal(t, 0.0, got[1], "position opened today")
			assert.InDeltaSlice(t, tt.want, got[2:], 1e-12)
		})
	}
}

func TestCalc_PerAsset(t *testing.T) {
	times := days(3)
	assets := []string{"A", "B"}
	flat := [][]float64{{10, 10}, {10, 10}, {10, 10}}
	res := &simulator.Result{
		Times:    times,
		Assets:   assets,
		PerAsset: true,
		Weights:  panelOf(times, assets, [][]float64{{0, 0}, {0.5, -0.5}, {0.5, -0.5}}),
		Shares:   panelOf(times, assets, [][]float64{{0, 0}, {0.05, -0.05}, {0.05, -0.05}}),
		Prices:   panelOf(times, assets, flat),
		Equity:   panelOf(times, assets, [][]float64{{1, 1}, {1, 1}, {1, 1}}),
		Returns:  panelOf(times, assets, [][]float64{{0, 0}, {0, 0}, {0, 0}}),
	}

	f, err := Calc(res, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, assets, f.Columns)
	assert.Equal(t, []float64{1, 1}, f.Last(MetricInstruments))
	assert.Equal(t, []float64{1, -1}, f.Last(MetricBias))
	assert.Len(t, f.Summary(), len(Metrics)*2)
}

func TestCalc_Errors(t *testing.T) {
	_, err := Calc(&simulator.Result{}, DefaultOptions())
	assert.ErrorIs(t, err, core.ErrNoData)

	opts := DefaultOptions()
	opts.MaxPeriods = -1
	_, err = Calc(aggregate([]float64{0, 0}, []float64{0, 0}), opts)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestPointsPerYear(t *testing.T) {
	assert.Equal(t, 251.0, PointsPerYear(days(10), core.AssetStocks))
	assert.Equal(t, 365.0, PointsPerYear(days(10), core.AssetCryptoDaily))
	assert.Equal(t, 8760.0, PointsPerYear(days(10), core.AssetCrypto))

	assert.InDelta(t, 365.0, PointsPerYear(days(400), core.AssetStocks), 1e-9)

	hourly := make([]time.Time, 300)
	for i := range hourly {
		hourly[i] = days(1)[0].Add(time.Duration(i) * time.Hour)
	}
	assert.InDelta(t, 8760.0, PointsPerYear(hourly, core.AssetStocks), 1e-9)
}

func TestRollingExtreme(t *testing.T) {
	nan := math.NaN()
	values := []float64{3, 1, nan, 4, 2}

	assert.Equal(t, []float64{3, 3, 3, 4, 4}, rollingMax(values, 0))
	assert.Equal(t, []float64{3, 3, 1, 4, 4}, rollingMax(values, 2))
	assert.Equal(t, []float64{3, 1, 1, 1, 1}, rollingMin(values, 0))
}
