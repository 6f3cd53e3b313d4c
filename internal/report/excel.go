package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/stats"
	"github.com/xuri/excelize/v2"
)

// Sheet names
const (
	SheetSummary    = "Summary"
	SheetStatistics = "Statistics"
	SheetEquity     = "Equity"
	SheetWeights    = "Weights"
)

type excelStyles struct {
	header int
	number int
}

// WriteExcel exports a backtest result to an xlsx workbook at path.
func WriteExcel(res *backtest.Result, path string) error {
	if res.Report == nil || res.Report.Stats == nil {
		return fmt.Errorf("result has no analysis to export")
	}
	// Ensure directory exists before creating file
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), SheetSummary)
	for _, s := range []string{SheetStatistics, SheetEquity, SheetWeights} {
		if _, err := fx.NewSheet(s); err != nil {
			return err
		}
	}

	styles, err := createStyles(fx)
	if err != nil {
		return err
	}

	if err := writeSummary(fx, res, styles); err != nil {
		return err
	}
	if err := writeStatistics(fx, res.Report.Stats, styles); err != nil {
		return err
	}
	if sim := res.Report.Simulation; sim != nil && sim.Equity != nil {
		if err := writePanel(fx, SheetEquity, sim.Equity, styles); err != nil {
			return err
		}
	}
	if res.Report.Weights != nil {
		if err := writePanel(fx, SheetWeights, res.Report.Weights, styles); err != nil {
			return err
		}
	}

	return fx.SaveAs(path)
}

func createStyles(fx *excelize.File) (excelStyles, error) {
	var s excelStyles
	var err error

	// Header style - Dark blue background with white text
	s.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return s, err
	}

	s.number, err = fx.NewStyle(&excelize.Style{
		CustomNumFmt: ptr("0.0000"),
		Alignment:    &excelize.Alignment{Horizontal: "right"},
	})
	return s, err
}

func writeSummary(fx *excelize.File, res *backtest.Result, st excelStyles) error {
	rows := [][]any{
		{"Run", res.RunID},
		{"Strategy", res.Strategy},
		{"Iterations", res.Iterations},
		{"Failures", res.Failures},
		{"Retrains", res.Retrains},
		{"Points per year", res.Report.Stats.PointsPerYear},
	}
	if la := res.LookAhead; la != nil {
		rows = append(rows,
			[]any{"Look-ahead compared", la.Compared},
			[]any{"Look-ahead violations", len(la.Violations)},
		)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := fx.SetSheetRow(SheetSummary, cell, &row); err != nil {
			return err
		}
	}
	fx.SetColWidth(SheetSummary, "A", "A", 22)
	fx.SetColWidth(SheetSummary, "B", "B", 40)
	return fx.SetCellStyle(SheetSummary, "A1", fmt.Sprintf("A%d", len(rows)), st.header)
}

// writeStatistics lays out the final value of every metric per column.
func writeStatistics(fx *excelize.File, f *stats.Frame, st excelStyles) error {
	header := []any{"Metric"}
	for _, col := range f.Columns {
		header = append(header, col)
	}
	if err := fx.SetSheetRow(SheetStatistics, "A1", &header); err != nil {
		return err
	}

	for i, m := range stats.Metrics {
		row := []any{string(m)}
		for _, v := range f.Last(m) {
			row = append(row, cellValue(v))
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := fx.SetSheetRow(SheetStatistics, cell, &row); err != nil {
			return err
		}
	}

	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := fx.SetCellStyle(SheetStatistics, "A1", last, st.header); err != nil {
		return err
	}
	fx.SetColWidth(SheetStatistics, "A", "A", 20)
	if len(f.Columns) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(header), len(stats.Metrics)+1)
		return fx.SetCellStyle(SheetStatistics, "B2", end, st.number)
	}
	return nil
}

// writePanel writes a time × asset panel with a date column.
func writePanel(fx *excelize.File, sheet string, p *grid.Panel, st excelStyles) error {
	header := []any{"Date"}
	for _, a := range p.Assets {
		header = append(header, a)
	}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for t := 0; t < p.Rows(); t++ {
		row := make([]any, 0, len(p.Assets)+1)
		if p.HasTimeAxis() {
			row = append(row, p.Times[t].UTC().Format(time.DateOnly))
		} else {
			row = append(row, "")
		}
		for _, v := range p.Row(t) {
			row = append(row, cellValue(v))
		}
		cell, _ := excelize.CoordinatesToCellName(1, t+2)
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := fx.SetCellStyle(sheet, "A1", last, st.header); err != nil {
		return err
	}
	fx.SetColWidth(sheet, "A", "A", 12)
	return fx.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

// NaN cannot be stored in a workbook; leave the cell blank.
func cellValue(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func ptr[T any](v T) *T { return &v }
