package backtest

import (
	"fmt"

	"github.com/newthinker/quantlab/internal/clean"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/simulator"
	"github.com/newthinker/quantlab/internal/stats"
)

// Analyze cleans weights, simulates them over data and computes statistics.
// A nil cleaner uses clean.Clean.
func Analyze(data *grid.Grid, weights *grid.Panel, cleaner Cleaner, sim simulator.Options, st stats.Options) (*Report, error) {
	if cleaner == nil {
		cleaner = clean.Clean
	}
	cleaned, rep, err := cleaner(weights, data)
	if err != nil {
		return nil, fmt.Errorf("clean weights: %w", err)
	}
	return score(data, cleaned, rep, sim, st)
}

func (d *Driver) analyze(data *grid.Grid, cleaned *grid.Panel, rep clean.Report) (*Report, error) {
	st := d.cfg.Stats
	if st.AssetClass == "" {
		st.AssetClass = d.cfg.AssetClass
	}
	report, err := score(data, cleaned, rep, d.cfg.Simulation, st)
	if err != nil {
		return nil, err
	}
	d.metrics.RecordSimulation(len(report.Simulation.Times))
	return report, nil
}

func score(data *grid.Grid, cleaned *grid.Panel, rep clean.Report, sim simulator.Options, st stats.Options) (*Report, error) {
	res, err := simulator.Simulate(data, cleaned, sim)
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	frame, err := stats.Calc(res, st)
	if err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	return &Report{Clean: rep, Weights: cleaned, Simulation: res, Stats: frame}, nil
}
