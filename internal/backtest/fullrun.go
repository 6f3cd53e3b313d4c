package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"go.uber.org/zap"
)

type runOutput struct {
	weights    *grid.Panel
	state      State
	iterations int
	failures   int
	retrains   int
}

// fullRun walks the data from StartDate with a fresh state. Failed
// iterations are logged and skipped.
func (d *Driver) fullRun(data *grid.Grid, log *zap.Logger) (*runOutput, error) {
	step := d.cfg.Step
	batched := d.strategy.Kind() == KindModel && !d.cfg.PredictEachDay
	if batched {
		step = max(step, d.cfg.RetrainInterval)
	}
	times := iterationTimes(data.Times, d.cfg.StartDate, step)
	if len(times) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no data after %s", d.cfg.StartDate.Format(time.DateOnly)))
	}

	out := &runOutput{state: State{CreatedAt: d.now()}}
	rows := newRowSet()

	for i, t := range times {
		out.iterations++

		if d.strategy.Kind() != KindModel {
			window := d.window(data, t, d.cfg.LookbackPeriod)
			o := d.timed("run", func() Outcome { return d.strategy.Run(window, out.state.Payload) })
			if !o.OK() {
				out.failures++
				log.Warn("iteration failed", zap.Time("at", t), zap.Error(o.Err))
				continue
			}
			rows.addAt(o.Weights, t)
			out.state.Payload = o.State
			continue
		}

		trained, err := d.ensureModel(data, t, &out.state, d.cfg.RetrainInterval)
		if err != nil {
			out.failures++
			log.Warn("training failed", zap.Time("at", t), zap.Error(err))
			if !out.state.HasModel() {
				continue
			}
		}
		if trained {
			out.retrains++
			log.Debug("model trained", zap.Time("at", t))
		}

		from, to := t, t
		if batched {
			to = data.Last()
			if i+1 < len(times) {
				to = times[i+1].Add(-time.Nanosecond)
			}
		}
		span := int(math.Ceil(to.Sub(from).Hours() / 24))
		window := d.window(data, to, d.cfg.LookbackPeriod+span)
		o := d.timed("predict", func() Outcome {
			return d.strategy.Predict(window, out.state.Model, out.state.Payload)
		})
		if !o.OK() {
			out.failures++
			log.Warn("prediction failed", zap.Time("at", t), zap.Error(o.Err))
			continue
		}
		if batched {
			rows.addRange(o.Weights, from, to)
		} else {
			rows.addAt(o.Weights, t)
		}
		out.state.Payload = o.State
	}

	if rows.empty() {
		return nil, core.WrapError(core.ErrStrategyFailed,
			fmt.Errorf("no iteration produced weights (%d failures)", out.failures))
	}
	weights, err := rows.panel()
	if err != nil {
		return nil, fmt.Errorf("collect weights: %w", err)
	}
	out.weights = weights
	return out, nil
}

// iterationTimes picks data timestamps from start on, each at least step
// calendar days after the previous one.
func iterationTimes(times []time.Time, start time.Time, step int) []time.Time {
	var out []time.Time
	var next time.Time
	for _, t := range times {
		if t.Before(start) || t.Before(next) {
			continue
		}
		out = append(out, t)
		next = t.AddDate(0, 0, step)
	}
	return out
}

// rowAt picks the weights for t from a strategy output: the vector itself,
// the row stamped t, or the last row.
func rowAt(w *grid.Panel, t time.Time) ([]string, []float64) {
	if !w.HasTimeAxis() {
		return w.Assets, w.Values
	}
	i := w.TimeIndex(t)
	if i < 0 {
		i = w.Rows() - 1
	}
	return w.Assets, w.Row(i)
}

// rowSet accumulates per-day outputs whose asset sets may differ.
type rowSet struct {
	times  []time.Time
	rows   []map[string]float64
	index  map[int64]int
	assets []string
	known  map[string]struct{}
}

func newRowSet() *rowSet {
	return &rowSet{index: make(map[int64]int), known: make(map[string]struct{})}
}

func (s *rowSet) empty() bool { return len(s.times) == 0 }

func (s *rowSet) add(t time.Time, assets []string, values []float64) {
	row := make(map[string]float64, len(assets))
	for i, a := range assets {
		row[a] = values[i]
		if _, ok := s.known[a]; !ok {
			s.known[a] = struct{}{}
			s.assets = append(s.assets, a)
		}
	}
	if i, ok := s.index[t.UnixNano()]; ok {
		s.rows[i] = row
		return
	}
	s.index[t.UnixNano()] = len(s.times)
	s.times = append(s.times, t)
	s.rows = append(s.rows, row)
}

func (s *rowSet) addAt(w *grid.Panel, t time.Time) {
	assets, values := rowAt(w, t)
	s.add(t, assets, values)
}

// addRange keeps the rows of a batch prediction with from <= time <= to.
// A vector output is stamped at from.
func (s *rowSet) addRange(w *grid.Panel, from, to time.Time) {
	if !w.HasTimeAxis() {
		s.add(from, w.Assets, w.Values)
		return
	}
	for i, t := range w.Times {
		if t.Before(from) || t.After(to) {
			continue
		}
		s.add(t, w.Assets, w.Row(i))
	}
}

func (s *rowSet) panel() (*grid.Panel, error) {
	p := grid.NewPanel(append([]time.Time(nil), s.times...), s.assets)
	for t, row := range s.rows {
		for a, asset := range s.assets {
			if v, ok := row[asset]; ok {
				p.Set(t, a, v)
			}
		}
	}
	if err := p.Sort(); err != nil {
		return nil, err
	}
	return p, nil
}
