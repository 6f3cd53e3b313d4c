// Package indicator provides the small set of rolling series helpers used by
// the built-in strategies and the slippage model. Every function returns a
// series aligned with its input; positions without enough history are NaN.
package indicator

import "math"

// SMA calculates a simple moving average over period samples.
// A window containing a NaN yields NaN.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}

	var sum float64
	bad := 0
	for i, v := range values {
		if math.IsNaN(v) {
			bad++
		} else {
			sum += v
		}
		if i >= period {
			old := values[i-period]
			if math.IsNaN(old) {
				bad--
			} else {
				sum -= old
			}
		}
		if i >= period-1 && bad == 0 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA calculates an exponential moving average seeded with the SMA of the
// first period values. NaN inputs carry the previous average forward.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	seed := SMA(values[:period], period)[period-1]
	if math.IsNaN(seed) {
		return out
	}
	multiplier := 2.0 / float64(period+1)
	ema := seed
	out[period-1] = ema
	for i := period; i < len(values); i++ {
		if !math.IsNaN(values[i]) {
			ema = (values[i]-ema)*multiplier + ema
		}
		out[i] = ema
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
