package backtest

import (
	"time"

	"github.com/newthinker/quantlab/internal/grid"
)

// WindowFunc returns the data a strategy sees at end.
type WindowFunc func(data *grid.Grid, end time.Time, lookbackDays int) *grid.Grid

// DefaultWindow slices the calendar days (end-lookbackDays, end].
func DefaultWindow(data *grid.Grid, end time.Time, lookbackDays int) *grid.Grid {
	from := end.AddDate(0, 0, -lookbackDays).Add(time.Nanosecond)
	return data.Slice(from, end)
}
