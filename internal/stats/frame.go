package stats

import (
	"time"

	"github.com/newthinker/quantlab/internal/grid"
)

// Frame is a (time, metric, column) cube of statistics.
type Frame struct {
	Times         []time.Time
	Columns       []string
	PointsPerYear float64

	series map[Metric]*grid.Panel
}

// SummaryRow is the final value of one metric for one column.
type SummaryRow struct {
	Metric Metric
	Column string
	Value  float64
}

func newFrame(times []time.Time, columns []string, ppy float64) *Frame {
	f := &Frame{
		Times:         times,
		Columns:       columns,
		PointsPerYear: ppy,
		series:        make(map[Metric]*grid.Panel, len(Metrics)),
	}
	for _, m := range Metrics {
		f.series[m] = grid.NewPanel(times, columns)
	}
	return f
}

func (f *Frame) set(m Metric, t, col int, v float64) {
	f.series[m].Set(t, col, v)
}

// Get returns the time × column series of m, or nil.
func (f *Frame) Get(m Metric) *grid.Panel {
	return f.series[m]
}

// Last returns the final value of m for each column.
func (f *Frame) Last(m Metric) []float64 {
	p := f.series[m]
	if p == nil || len(f.Times) == 0 {
		return nil
	}
	return append([]float64(nil), p.Row(len(f.Times)-1)...)
}

// Summary lists the final value of every metric and column.
func (f *Frame) Summary() []SummaryRow {
	rows := make([]SummaryRow, 0, len(Metrics)*len(f.Columns))
	for _, m := range Metrics {
		last := f.Last(m)
		for i, col := range f.Columns {
			rows = append(rows, SummaryRow{Metric: m, Column: col, Value: last[i]})
		}
	}
	return rows
}
