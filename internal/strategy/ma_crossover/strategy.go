package ma_crossover

import (
	"fmt"
	"math"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/indicator"
	"github.com/newthinker/quantlab/internal/strategy"
)

// MACrossover implements a moving average crossover strategy
type MACrossover struct {
	fastPeriod int
	slowPeriod int
	longOnly   bool
}

// New creates a new MA Crossover strategy
func New(fastPeriod, slowPeriod int) *MACrossover {
	return &MACrossover{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
	}
}

func (m *MACrossover) Name() string {
	return "ma_crossover"
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("MA Crossover (%d/%d)", m.fastPeriod, m.slowPeriod)
}

func (m *MACrossover) Init(cfg strategy.Config) error {
	var err error
	if m.fastPeriod, err = strategy.IntParam(cfg.Params, "fast_period", m.fastPeriod); err != nil {
		return err
	}
	if m.slowPeriod, err = strategy.IntParam(cfg.Params, "slow_period", m.slowPeriod); err != nil {
		return err
	}
	if m.longOnly, err = strategy.BoolParam(cfg.Params, "long_only", m.longOnly); err != nil {
		return err
	}
	if m.fastPeriod <= 0 || m.fastPeriod >= m.slowPeriod {
		return fmt.Errorf("fast_period %d must be positive and below slow_period %d", m.fastPeriod, m.slowPeriod)
	}
	return nil
}

func (m *MACrossover) Backtest() backtest.Strategy {
	return backtest.Stateless(m.Weights)
}

// Weights goes long each asset whose fast average is above the slow one and
// short (or flat when long-only) when below, equally weighted.
func (m *MACrossover) Weights(data *grid.Grid) (*grid.Panel, error) {
	px := data.Field(core.FieldClose)
	if px == nil {
		return nil, fmt.Errorf("ma_crossover: %w", core.ErrInvalidInput)
	}

	last := px.Rows() - 1
	out := make([]float64, len(data.Assets))
	active := 0
	for a := range data.Assets {
		prices := px.Column(a)
		fast := indicator.SMA(prices, m.fastPeriod)
		slow := indicator.SMA(prices, m.slowPeriod)
		if last < 0 || math.IsNaN(fast[last]) || math.IsNaN(slow[last]) {
			continue
		}

		switch {
		case fast[last] > slow[last]:
			out[a] = 1
		case fast[last] < slow[last] && !m.longOnly:
			out[a] = -1
		}
		if out[a] != 0 {
			active++
		}
	}

	if active > 0 {
		for a := range out {
			out[a] /= float64(active)
		}
	}
	return grid.Vector(data.Assets, out), nil
}
