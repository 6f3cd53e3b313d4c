// Package grid holds the labeled numeric containers shared by the simulator,
// the statistics aggregator and the backtest driver.
//
// A Panel is a dense time × asset matrix kept in one row-major buffer; a Grid
// is a set of panels, one per market data field, sharing the same axes.
// Missing cells are NaN.
package grid

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Epsilon is the magnitude below which prices and weight budgets are treated as zero.
const Epsilon = 1e-7

// Panel is a time × asset matrix. A panel with a nil Times axis is a single
// row indexed by asset only.
type Panel struct {
	Times  []time.Time
	Assets []string
	Values []float64
}

// NewPanel allocates a NaN-filled panel. Passing nil times creates a vector
// panel with a single row.
func NewPanel(times []time.Time, assets []string) *Panel {
	rows := len(times)
	if times == nil {
		rows = 1
	}
	values := make([]float64, rows*len(assets))
	for i := range values {
		values[i] = math.NaN()
	}
	return &Panel{Times: times, Assets: assets, Values: values}
}

// Vector builds a single-row panel with the given weights per asset.
func Vector(assets []string, values []float64) *Panel {
	return &Panel{Assets: assets, Values: values}
}

// HasTimeAxis reports whether the panel is indexed by time.
func (p *Panel) HasTimeAxis() bool {
	return p.Times != nil
}

// Rows returns the number of time rows.
func (p *Panel) Rows() int {
	if p.Times == nil {
		return 1
	}
	return len(p.Times)
}

// Validate checks buffer length and time ordering.
func (p *Panel) Validate() error {
	if want := p.Rows() * len(p.Assets); len(p.Values) != want {
		return fmt.Errorf("panel has %d values, want %d (%d rows x %d assets)",
			len(p.Values), want, p.Rows(), len(p.Assets))
	}
	for i := 1; i < len(p.Times); i++ {
		if !p.Times[i].After(p.Times[i-1]) {
			return fmt.Errorf("times not strictly increasing at %s", p.Times[i].Format(time.RFC3339))
		}
	}
	return nil
}

func (p *Panel) At(t, a int) float64 {
	return p.Values[t*len(p.Assets)+a]
}

func (p *Panel) Set(t, a int, v float64) {
	p.Values[t*len(p.Assets)+a] = v
}

// Row returns a view of row t; writes go through to the panel.
func (p *Panel) Row(t int) []float64 {
	n := len(p.Assets)
	return p.Values[t*n : (t+1)*n]
}

// Column copies the series of asset a.
func (p *Panel) Column(a int) []float64 {
	out := make([]float64, p.Rows())
	for t := range out {
		out[t] = p.At(t, a)
	}
	return out
}

// Clone returns a deep copy.
func (p *Panel) Clone() *Panel {
	c := &Panel{
		Assets: append([]string(nil), p.Assets...),
		Values: append([]float64(nil), p.Values...),
	}
	if p.Times != nil {
		c.Times = append([]time.Time{}, p.Times...)
	}
	return c
}

// TimeIndex returns the row of t, or -1.
func (p *Panel) TimeIndex(t time.Time) int {
	return timeIndex(p.Times, t)
}

// AssetIndex returns the column of asset, or -1.
func (p *Panel) AssetIndex(asset string) int {
	for i, a := range p.Assets {
		if a == asset {
			return i
		}
	}
	return -1
}

// AtTime stamps a vector panel with a single timestamp. Panels that already
// have a time axis are returned unchanged.
func (p *Panel) AtTime(t time.Time) *Panel {
	if p.Times != nil {
		return p
	}
	return &Panel{Times: []time.Time{t}, Assets: p.Assets, Values: p.Values}
}

// Reindex maps the panel onto new axes. Cells absent from the source are NaN.
func (p *Panel) Reindex(times []time.Time, assets []string) *Panel {
	out := NewPanel(times, assets)
	cols := make([]int, len(assets))
	for i, a := range assets {
		cols[i] = p.AssetIndex(a)
	}
	for t := 0; t < out.Rows(); t++ {
		src := 0
		if times != nil {
			src = p.TimeIndex(times[t])
			if src < 0 {
				continue
			}
		}
		for i, c := range cols {
			if c >= 0 {
				out.Set(t, i, p.At(src, c))
			}
		}
	}
	return out
}

// Slice returns a copy restricted to from <= time <= to. A zero bound is open.
func (p *Panel) Slice(from, to time.Time) *Panel {
	lo, hi := timeBounds(p.Times, from, to)
	n := len(p.Assets)
	return &Panel{
		Times:  append([]time.Time{}, p.Times[lo:hi]...),
		Assets: p.Assets,
		Values: append([]float64(nil), p.Values[lo*n:hi*n]...),
	}
}

// Shift moves rows forward by n steps; the first n rows become NaN.
func (p *Panel) Shift(n int) *Panel {
	out := NewPanel(p.Times, p.Assets)
	cols := len(p.Assets)
	for t := n; t < p.Rows(); t++ {
		copy(out.Values[t*cols:(t+1)*cols], p.Values[(t-n)*cols:(t-n+1)*cols])
	}
	return out
}

// FillNaN replaces every non-finite value with v in place.
func (p *Panel) FillNaN(v float64) {
	for i, x := range p.Values {
		if !isFinite(x) {
			p.Values[i] = v
		}
	}
}

// ForwardFill propagates the last finite value of each asset down the time
// axis in place. Leading gaps stay NaN.
func (p *Panel) ForwardFill() {
	for a := range p.Assets {
		last := math.NaN()
		for t := 0; t < p.Rows(); t++ {
			v := p.At(t, a)
			if isFinite(v) {
				last = v
			} else {
				p.Set(t, a, last)
			}
		}
	}
}

// AbsSum returns the sum of absolute finite values in row t.
func (p *Panel) AbsSum(t int) float64 {
	var s float64
	for _, v := range p.Row(t) {
		if isFinite(v) {
			s += math.Abs(v)
		}
	}
	return s
}

// Normalize scales every row whose gross exposure exceeds 1 back to 1 and
// returns the number of rows changed.
func (p *Panel) Normalize() int {
	changed := 0
	for t := 0; t < p.Rows(); t++ {
		s := p.AbsSum(t)
		if s <= 1 {
			continue
		}
		row := p.Row(t)
		for i := range row {
			row[i] /= s
		}
		changed++
	}
	return changed
}

// HasFinite reports whether any cell is finite.
func (p *Panel) HasFinite() bool {
	for _, v := range p.Values {
		if isFinite(v) {
			return true
		}
	}
	return false
}

// Sort orders rows by time. Duplicate timestamps are an error.
func (p *Panel) Sort() error {
	perm, err := sortPermutation(p.Times)
	if err != nil || perm == nil {
		return err
	}
	p.Times = permuteTimes(p.Times, perm)
	p.Values = permuteRows(p.Values, len(p.Assets), perm)
	return nil
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return isFinite(v)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func timeIndex(times []time.Time, t time.Time) int {
	i := sort.Search(len(times), func(i int) bool { return !times[i].Before(t) })
	if i < len(times) && times[i].Equal(t) {
		return i
	}
	return -1
}

func timeBounds(times []time.Time, from, to time.Time) (int, int) {
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(len(times), func(i int) bool { return !times[i].Before(from) })
	}
	hi := len(times)
	if !to.IsZero() {
		hi = sort.Search(len(times), func(i int) bool { return times[i].After(to) })
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// sortPermutation returns nil when times are already strictly increasing.
func sortPermutation(times []time.Time) ([]int, error) {
	sorted := true
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			sorted = false
			break
		}
	}
	if sorted {
		return nil, nil
	}
	perm := make([]int, len(times))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool { return times[perm[i]].Before(times[perm[j]]) })
	for i := 1; i < len(perm); i++ {
		if times[perm[i]].Equal(times[perm[i-1]]) {
			return nil, fmt.Errorf("duplicate timestamp %s", times[perm[i]].Format(time.RFC3339))
		}
	}
	return perm, nil
}

func permuteTimes(times []time.Time, perm []int) []time.Time {
	out := make([]time.Time, len(perm))
	for i, j := range perm {
		out[i] = times[j]
	}
	return out
}

func permuteRows(values []float64, cols int, perm []int) []float64 {
	out := make([]float64, len(values))
	for i, j := range perm {
		copy(out[i*cols:(i+1)*cols], values[j*cols:(j+1)*cols])
	}
	return out
}
