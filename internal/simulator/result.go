package simulator

import (
	"time"

	"github.com/newthinker/quantlab/internal/grid"
)

// PortfolioColumn is the single asset label of aggregate-mode series.
const PortfolioColumn = "portfolio"

// Result holds the realized path of a simulation. In aggregate mode Equity
// and Returns have one PortfolioColumn column; in per-asset mode they have
// one column per asset.
type Result struct {
	Times    []time.Time
	Assets   []string
	PerAsset bool

	Weights  *grid.Panel // shifted and normalized weights actually targeted each day
	Shares   *grid.Panel
	Prices   *grid.Panel // forward-filled close used for marking positions
	Slippage *grid.Panel
	Locked   *Mask

	Equity  *grid.Panel
	Returns *grid.Panel
}

// Empty reports whether nothing was simulated.
func (r *Result) Empty() bool {
	return r == nil || len(r.Times) == 0
}

// EquityColumns returns the labels of the equity series.
func (r *Result) EquityColumns() []string {
	if r.Equity == nil {
		return nil
	}
	return r.Equity.Assets
}

// FinalEquity returns the last equity value of the first column.
func (r *Result) FinalEquity() float64 {
	if r.Empty() {
		return 1
	}
	return r.Equity.At(len(r.Times)-1, 0)
}

func emptyResult(perAsset bool) *Result {
	return &Result{PerAsset: perAsset}
}
