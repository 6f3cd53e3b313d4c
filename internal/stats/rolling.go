package stats

import (
	"math"

	"github.com/gammazero/deque"
	"github.com/newthinker/quantlab/internal/grid"
)

func rollingMax(values []float64, window int) []float64 {
	return rollingExtreme(values, window, func(a, b float64) bool { return a > b })
}

func rollingMin(values []float64, window int) []float64 {
	return rollingExtreme(values, window, func(a, b float64) bool { return a < b })
}

// rollingExtreme keeps a monotonic queue of indices whose values are
// strictly better than everything behind them. A window of 0 expands.
func rollingExtreme(values []float64, window int, better func(a, b float64) bool) []float64 {
	out := make([]float64, len(values))
	var q deque.Deque[int]
	for i, v := range values {
		if window > 0 {
			for q.Len() > 0 && q.Front() <= i-window {
				q.PopFront()
			}
		}
		if grid.IsFinite(v) {
			for q.Len() > 0 && !better(values[q.Back()], v) {
				q.PopBack()
			}
			q.PushBack(i)
		}
		if q.Len() == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[q.Front()]
	}
	return out
}
