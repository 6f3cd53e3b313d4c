package momentum

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/strategy"
)

// Momentum holds the assets with the strongest smoothed trailing return.
// The smoothed score is carried between calls as strategy state.
type Momentum struct {
	lookback  int
	smoothing float64
	top       int
}

// State is the JSON payload carried between iterations.
type State struct {
	Scores map[string]float64 `json:"scores"`
}

// New creates a momentum strategy with the default parameters
func New() *Momentum {
	return &Momentum{lookback: 20, smoothing: 0.5}
}

func (m *Momentum) Name() string {
	return "momentum"
}

func (m *Momentum) Description() string {
	return fmt.Sprintf("Smoothed momentum (lookback %d, smoothing %.2f)", m.lookback, m.smoothing)
}

func (m *Momentum) Init(cfg strategy.Config) error {
	var err error
	if m.lookback, err = strategy.IntParam(cfg.Params, "lookback", m.lookback); err != nil {
		return err
	}
	if m.smoothing, err = strategy.FloatParam(cfg.Params, "smoothing", m.smoothing); err != nil {
		return err
	}
	if m.top, err = strategy.IntParam(cfg.Params, "top", m.top); err != nil {
		return err
	}
	if m.lookback <= 0 {
		return fmt.Errorf("lookback must be positive, got %d", m.lookback)
	}
	if m.smoothing <= 0 || m.smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0, 1], got %v", m.smoothing)
	}
	if m.top < 0 {
		return fmt.Errorf("top must not be negative, got %d", m.top)
	}
	return nil
}

func (m *Momentum) Backtest() backtest.Strategy {
	return backtest.Stateful(m.Weights)
}

// Weights updates the smoothed scores and allocates to positive ones in
// proportion to their score.
func (m *Momentum) Weights(data *grid.Grid, raw json.RawMessage) (*grid.Panel, json.RawMessage, error) {
	px := data.Field(core.FieldClose)
	if px == nil {
		return nil, nil, fmt.Errorf("momentum: %w", core.ErrInvalidInput)
	}

	state := State{Scores: map[string]float64{}}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, nil, fmt.Errorf("decode momentum state: %w", err)
		}
		if state.Scores == nil {
			state.Scores = map[string]float64{}
		}
	}

	last := px.Rows() - 1
	for a, asset := range data.Assets {
		if last-m.lookback < 0 {
			break
		}
		now, then := px.At(last, a), px.At(last-m.lookback, a)
		if !grid.IsFinite(now) || !grid.IsFinite(then) || then <= 0 {
			continue
		}
		ret := now/then - 1
		if prev, ok := state.Scores[asset]; ok {
			state.Scores[asset] = m.smoothing*ret + (1-m.smoothing)*prev
		} else {
			state.Scores[asset] = ret
		}
	}

	w := m.allocate(data.Assets, state.Scores)
	next, err := json.Marshal(state)
	if err != nil {
		return nil, nil, fmt.Errorf("encode momentum state: %w", err)
	}
	return grid.Vector(data.Assets, w), next, nil
}

func (m *Momentum) allocate(assets []string, scores map[string]float64) []float64 {
	type ranked struct {
		index int
		score float64
	}
	var picks []ranked
	for a, asset := range assets {
		if s, ok := scores[asset]; ok && s > 0 && !math.IsInf(s, 0) {
			picks = append(picks, ranked{a, s})
		}
	}
	sort.SliceStable(picks, func(i, j int) bool { return picks[i].score > picks[j].score })
	if m.top > 0 && len(picks) > m.top {
		picks = picks[:m.top]
	}

	var total float64
	for _, p := range picks {
		total += p.score
	}
	w := make([]float64, len(assets))
	for _, p := range picks {
		w[p.index] = p.score / total
	}
	return w
}
