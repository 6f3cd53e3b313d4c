package stats

import (
	"math"
	"time"

	"github.com/newthinker/quantlab/internal/grid"
)

// position is the open leg of one asset: its cost basis and its entry time
// in days since the first timestamp.
type position struct {
	shares float64
	cost   float64
	entry  float64
}

// holdingLedger tracks how long capital stays in positions. A sign flip, an
// exit or a partial unwind books the closed cost with its duration. A leg
// that grows is booked in full and reopened at the new size.
type holdingLedger struct {
	times  []time.Time
	assets []int
	shares *grid.Panel
	prices *grid.Panel

	open       []position
	closedCost float64
	closedDays float64
}

func newHoldingLedger(times []time.Time, assets []int, shares, prices *grid.Panel) *holdingLedger {
	return &holdingLedger{
		times:  times,
		assets: assets,
		shares: shares,
		prices: prices,
		open:   make([]position, len(assets)),
	}
}

// step folds row t into the ledger and returns the average holding time in
// days over closed and still-open positions, or NaN when nothing was held.
func (l *holdingLedger) step(t int) float64 {
	now := l.times[t].Sub(l.times[0]).Hours() / 24
	for i, a := range l.assets {
		cur := l.shares.At(t, a)
		price := math.Abs(l.prices.At(t, a))
		if !grid.IsFinite(price) {
			price = 0
		}
		l.update(&l.open[i], cur, price, now)
	}

	cost, days := l.closedCost, l.closedDays
	for _, p := range l.open {
		if p.shares != 0 {
			cost += p.cost
			days += p.cost * (now - p.entry)
		}
	}
	return divide(days, cost)
}

func (l *holdingLedger) update(p *position, cur, price, now float64) {
	prev := p.shares
	switch {
	case cur == prev:
		return
	case prev == 0 || (cur > 0) != (prev > 0) || math.Abs(cur) > math.Abs(prev):
		if prev != 0 {
			l.close(p, 1, now)
		}
		*p = position{}
		if cur != 0 {
			*p = position{shares: cur, cost: math.Abs(cur) * price, entry: now}
		}
	default:
		fraction := (math.Abs(prev) - math.Abs(cur)) / math.Abs(prev)
		l.close(p, fraction, now)
		p.shares = cur
	}
}

// close books fraction of the position's cost at its current age.
func (l *holdingLedger) close(p *position, fraction, now float64) {
	booked := p.cost * fraction
	l.closedCost += booked
	l.closedDays += booked * (now - p.entry)
	p.cost -= booked
}
