package grid

import (
	"fmt"
	"time"

	"github.com/newthinker/quantlab/internal/core"
)

// Grid is a (time, field, asset) container: one Panel per field over shared axes.
type Grid struct {
	Times  []time.Time
	Assets []string

	fields []core.Field
	panels map[core.Field]*Panel
}

// New allocates a grid with NaN-filled panels for the given fields.
func New(times []time.Time, assets []string, fields ...core.Field) *Grid {
	g := &Grid{
		Times:  times,
		Assets: assets,
		panels: make(map[core.Field]*Panel, len(fields)),
	}
	for _, f := range fields {
		g.fields = append(g.fields, f)
		g.panels[f] = NewPanel(times, assets)
	}
	return g
}

// Len returns the number of timestamps.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Times)
}

// Empty reports whether the grid has no cells.
func (g *Grid) Empty() bool {
	return g.Len() == 0 || len(g.Assets) == 0
}

// Fields returns the fields in insertion order.
func (g *Grid) Fields() []core.Field {
	return append([]core.Field(nil), g.fields...)
}

// Has reports whether the field is present.
func (g *Grid) Has(f core.Field) bool {
	_, ok := g.panels[f]
	return ok
}

// Field returns the panel of f, or nil.
func (g *Grid) Field(f core.Field) *Panel {
	return g.panels[f]
}

// SetField attaches p as field f. Its axes must match the grid's.
func (g *Grid) SetField(f core.Field, p *Panel) error {
	if len(p.Times) != len(g.Times) || len(p.Assets) != len(g.Assets) {
		return core.WrapError(core.ErrInvalidDimensions,
			fmt.Errorf("field %s is %dx%d, grid is %dx%d", f, len(p.Times), len(p.Assets), len(g.Times), len(g.Assets)))
	}
	if err := p.Validate(); err != nil {
		return core.WrapError(core.ErrInvalidDimensions, err)
	}
	if _, ok := g.panels[f]; !ok {
		g.fields = append(g.fields, f)
	}
	g.panels[f] = &Panel{Times: g.Times, Assets: g.Assets, Values: p.Values}
	return nil
}

// TimeIndex returns the row of t, or -1.
func (g *Grid) TimeIndex(t time.Time) int {
	return timeIndex(g.Times, t)
}

// AssetIndex returns the column of asset, or -1.
func (g *Grid) AssetIndex(asset string) int {
	for i, a := range g.Assets {
		if a == asset {
			return i
		}
	}
	return -1
}

// First and Last return the bounding timestamps of a non-empty grid.
func (g *Grid) First() time.Time { return g.Times[0] }
func (g *Grid) Last() time.Time  { return g.Times[len(g.Times)-1] }

// Slice copies the rows with from <= time <= to. A zero bound is open.
func (g *Grid) Slice(from, to time.Time) *Grid {
	lo, hi := timeBounds(g.Times, from, to)
	out := &Grid{
		Times:  append([]time.Time{}, g.Times[lo:hi]...),
		Assets: g.Assets,
		fields: g.Fields(),
		panels: make(map[core.Field]*Panel, len(g.panels)),
	}
	n := len(g.Assets)
	for f, p := range g.panels {
		out.panels[f] = &Panel{
			Times:  out.Times,
			Assets: out.Assets,
			Values: append([]float64(nil), p.Values[lo*n:hi*n]...),
		}
	}
	return out
}

// Sort orders the grid by time and rejects duplicate timestamps.
func (g *Grid) Sort() error {
	perm, err := sortPermutation(g.Times)
	if err != nil {
		return core.WrapError(core.ErrInvalidInput, err)
	}
	if perm == nil {
		return nil
	}
	g.Times = permuteTimes(g.Times, perm)
	for _, p := range g.panels {
		p.Times = g.Times
		p.Values = permuteRows(p.Values, len(g.Assets), perm)
	}
	return nil
}

// Merge stacks grids with disjoint asset sets onto the union of their
// timestamps, e.g. per-asset parquet files loaded one by one.
func Merge(parts ...*Grid) *Grid {
	seen := make(map[time.Time]struct{})
	var times []time.Time
	var assets []string
	var fields []core.Field
	hasField := make(map[core.Field]bool)
	for _, p := range parts {
		for _, t := range p.Times {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				times = append(times, t)
			}
		}
		assets = append(assets, p.Assets...)
		for _, f := range p.fields {
			if !hasField[f] {
				hasField[f] = true
				fields = append(fields, f)
			}
		}
	}
	sortTimes(times)

	out := New(times, assets, fields...)
	col := 0
	for _, p := range parts {
		for t, ts := range p.Times {
			row := out.TimeIndex(ts)
			for a := range p.Assets {
				for f, src := range p.panels {
					out.panels[f].Set(row, col+a, src.At(t, a))
				}
			}
		}
		col += len(p.Assets)
	}
	return out
}

func sortTimes(times []time.Time) {
	perm, _ := sortPermutation(times)
	if perm == nil {
		return
	}
	copy(times, permuteTimes(times, perm))
}
