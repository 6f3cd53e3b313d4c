package stats

import (
	"sort"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"gonum.org/v1/gonum/stat"
)

// minInferPoints is the history length from which the sampling frequency is
// inferred instead of taken from the asset class.
const minInferPoints = 251

const year = 365 * 24 * time.Hour

// PointsPerYear returns the number of samples per year of the series.
// Intraday series are annualized from the median bar spacing; daily or
// coarser series from the sample count over the elapsed years, which
// accounts for weekends and holidays.
func PointsPerYear(times []time.Time, class core.AssetClass) float64 {
	if len(times) < minInferPoints {
		return class.PointsPerYear()
	}

	deltas := make([]float64, len(times)-1)
	for i := 1; i < len(times); i++ {
		deltas[i-1] = times[i].Sub(times[i-1]).Seconds()
	}
	sort.Float64s(deltas)
	median := stat.Quantile(0.5, stat.Empirical, deltas, nil)
	if median <= 0 {
		return class.PointsPerYear()
	}
	if median < (24 * time.Hour).Seconds() {
		return year.Seconds() / median
	}

	elapsed := times[len(times)-1].Sub(times[0]).Seconds() / year.Seconds()
	return float64(len(times)-1) / elapsed
}
