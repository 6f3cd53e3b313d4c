package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"go.uber.org/zap"
)

// lookAhead reruns the strategy on data cut LookAheadTruncateDays before the
// horizon and compares it with the full-run weights on the shared days.
func (d *Driver) lookAhead(data *grid.Grid, full *grid.Panel, log *zap.Logger) (*LookAheadReport, error) {
	horizon := data.Last()
	cut := horizon.AddDate(0, 0, -d.cfg.LookAheadTruncateDays)
	truncated := data.Slice(time.Time{}, cut)
	if truncated.Empty() {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no data before %s", cut.Format(time.DateOnly)))
	}

	log.Info("look-ahead check", zap.Time("horizon", horizon), zap.Time("truncated", cut))
	run, err := d.fullRun(truncated, log)
	if err != nil {
		return nil, fmt.Errorf("truncated run: %w", err)
	}
	partial, _, err := d.cleaner(run.weights, truncated)
	if err != nil {
		return nil, fmt.Errorf("clean truncated weights: %w", err)
	}

	rep := CompareWeights(full, partial, d.cfg.Tolerance)
	rep.Horizon, rep.Truncated = horizon, cut
	if !rep.Passed() {
		d.metrics.RecordLookAheadViolation()
		log.Warn("look-ahead bias detected",
			zap.Int("violations", len(rep.Violations)),
			zap.Float64("max_diff", rep.MaxDiff),
			zap.Time("first", rep.Violations[0].Time),
		)
	}
	return rep, nil
}

// CompareWeights diffs two weight grids over the timestamps present in both.
// Assets missing from one side count as 0.
func CompareWeights(full, partial *grid.Panel, tolerance float64) *LookAheadReport {
	rep := &LookAheadReport{}
	assets := unionAssets(full.Assets, partial.Assets)
	for pt, t := range partial.Times {
		ft := full.TimeIndex(t)
		if ft < 0 {
			continue
		}
		for _, asset := range assets {
			a, b := valueOf(full, ft, asset), valueOf(partial, pt, asset)
			diff := math.Abs(a - b)
			rep.Compared++
			if diff > rep.MaxDiff {
				rep.MaxDiff = diff
			}
			if diff > tolerance {
				rep.Violations = append(rep.Violations, Violation{Time: t, Asset: asset, Full: a, Truncated: b})
			}
		}
	}
	return rep
}

func valueOf(p *grid.Panel, t int, asset string) float64 {
	a := p.AssetIndex(asset)
	if a < 0 {
		return 0
	}
	v := p.At(t, a)
	if !grid.IsFinite(v) {
		return 0
	}
	return v
}

func unionAssets(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	return out
}
