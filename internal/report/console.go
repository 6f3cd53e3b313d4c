// Package report renders backtest results for people: tables on a terminal
// and an xlsx workbook.
package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/stats"
)

// Console writes tables to a terminal
type Console struct {
	out io.Writer
}

// NewConsole creates a console renderer writing to out
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Render prints the run overview, the final statistics and the look-ahead
// verdict when present.
func (c *Console) Render(res *backtest.Result) {
	c.renderOverview(res)
	if res.Report != nil && res.Report.Stats != nil {
		c.renderStats(res.Report.Stats)
	}
	if res.LookAhead != nil {
		c.RenderLookAhead(res.LookAhead)
	}
}

func (c *Console) renderOverview(res *backtest.Result) {
	t := c.newTable("BACKTEST " + res.Strategy)
	t.AppendRows([]table.Row{
		{"Run", res.RunID},
		{"Iterations", res.Iterations},
		{"Failures", res.Failures},
		{"Retrains", res.Retrains},
	})
	if res.Report != nil {
		rep := res.Report.Clean
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Missed dates", rep.MissedDates},
			{"Unknown assets", rep.UnknownAssets},
			{"Illiquid weights", rep.Illiquid},
			{"Non-finite weights", rep.NonFinite},
			{"Normalized rows", rep.Normalized},
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()
	fmt.Fprintln(c.out)
}

func (c *Console) renderStats(f *stats.Frame) {
	title := "STATISTICS"
	if len(f.Times) > 0 {
		title = fmt.Sprintf("STATISTICS AT %s", f.Times[len(f.Times)-1].Format(time.DateOnly))
	}
	t := c.newTable(title)

	header := table.Row{"Metric"}
	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignLeft}}
	for i, col := range f.Columns {
		header = append(header, col)
		configs = append(configs, table.ColumnConfig{Number: i + 2, Align: text.AlignRight})
	}
	t.AppendHeader(header)

	for _, m := range stats.Metrics {
		row := table.Row{string(m)}
		for _, v := range f.Last(m) {
			row = append(row, FormatValue(v))
		}
		t.AppendRow(row)
	}
	t.SetColumnConfigs(configs)
	t.Render()
	fmt.Fprintln(c.out)
}

// RenderLookAhead prints the look-ahead check and the worst violations.
func (c *Console) RenderLookAhead(r *backtest.LookAheadReport) {
	t := c.newTable("LOOK-AHEAD CHECK")
	verdict := text.FgGreen.Sprint("passed")
	if !r.Passed() {
		verdict = text.FgRed.Sprintf("%d violations", len(r.Violations))
	}
	t.AppendRows([]table.Row{
		{"Horizon", r.Horizon.Format(time.DateOnly)},
		{"Truncated at", r.Truncated.Format(time.DateOnly)},
		{"Compared cells", r.Compared},
		{"Max difference", FormatValue(r.MaxDiff)},
		{"Result", verdict},
	})

	const maxShown = 10
	if len(r.Violations) > 0 {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Time / asset", "full vs truncated"})
		for i, v := range r.Violations {
			if i == maxShown {
				t.AppendRow(table.Row{"…", fmt.Sprintf("%d more", len(r.Violations)-maxShown)})
				break
			}
			t.AppendRow(table.Row{
				v.Time.Format(time.DateOnly) + " " + v.Asset,
				FormatValue(v.Full) + " vs " + FormatValue(v.Truncated),
			})
		}
	}
	t.Render()
	fmt.Fprintln(c.out)
}

func (c *Console) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// FormatValue prints a metric value with four decimals; NaN prints as "-".
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}
