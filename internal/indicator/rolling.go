package indicator

import "math"

// RollingMean averages the finite values in each trailing window of period
// samples, requiring at least minPeriods of them.
func RollingMean(values []float64, period, minPeriods int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	if minPeriods < 1 {
		minPeriods = 1
	}

	var sum float64
	count := 0
	for i, v := range values {
		if finite(v) {
			sum += v
			count++
		}
		if i >= period {
			if old := values[i-period]; finite(old) {
				sum -= old
				count--
			}
		}
		if count >= minPeriods {
			out[i] = sum / float64(count)
		}
	}
	return out
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) per bar.
// Bars without high/low fall back to |close-prevClose|; the first bar uses
// high-low only.
func TrueRange(high, low, close []float64) []float64 {
	out := nanSlice(len(close))
	prev := math.NaN()
	for i := range close {
		h, l, c := at(high, i), at(low, i), close[i]
		switch {
		case finite(h) && finite(l):
			tr := h - l
			if finite(prev) {
				tr = math.Max(tr, math.Max(math.Abs(h-prev), math.Abs(l-prev)))
			}
			out[i] = tr
		case finite(c) && finite(prev):
			out[i] = math.Abs(c - prev)
		}
		if finite(c) {
			prev = c
		}
	}
	return out
}

func at(values []float64, i int) float64 {
	if values == nil {
		return math.NaN()
	}
	return values[i]
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
