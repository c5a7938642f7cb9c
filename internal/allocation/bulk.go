package allocation

import (
	"github.com/shopspring/decimal"
)

// bisectSteps bounds the search for the bulk level. Each step halves the
// interval, far below any lot size after this many.
const bisectSteps = 64

var two = decimal.NewFromInt(2)

// lane is a correctable child as seen by bulk.
type lane struct {
	asset *Asset
	index int
	unit  decimal.Decimal
	ideal decimal.Decimal
	// fixed is false for a group taking the whole remaining balance, whose
	// unit shrinks as the balance does.
	fixed bool
	// limit is the number of units the child can move within its bounds.
	limit   decimal.Decimal
	bounded bool
}

// Every unit of a child has a level: (T + n*unit) / ideal in a surplus pass
// and (n*unit - T) / ideal in a shortage pass, for the n-th unit on a target
// T. A pass always picks the lowest level, so all units up to some level are
// picked before any other, and bulk applies them together as long as they fit
// the balance and no shrinking group unit would have been picked in between.

// count is how many units of l have a level at or below x.
func (l lane) count(x decimal.Decimal, dir direction) decimal.Decimal {
	n := x.Mul(l.ideal)
	if dir == shortage {
		n = n.Add(l.asset.TargetValue)
	} else {
		n = n.Sub(l.asset.TargetValue)
	}
	if !n.IsPositive() {
		return decimal.Zero
	}
	k, _ := n.QuoRem(l.unit, 0)
	if l.bounded && k.GreaterThan(l.limit) {
		k = l.limit
	}
	return k
}

// level of the n-th unit of l.
func (l lane) level(n decimal.Decimal, dir direction) decimal.Decimal {
	v := n.Mul(l.unit)
	if dir == shortage {
		v = v.Sub(l.asset.TargetValue)
	} else {
		v = v.Add(l.asset.TargetValue)
	}
	return v.Div(l.ideal)
}

func (al *allocator) lanes(assets []*Asset, correctable []bool, total, budget decimal.Decimal, dir direction) []lane {
	var out []lane
	for i, a := range assets {
		if !correctable[i] {
			continue
		}
		l := lane{
			asset: a,
			index: i,
			unit:  al.unit(a, budget),
			ideal: total.Mul(a.ExpectedWeight),
		}
		_, instrument := a.Holding.(Instrument)
		l.fixed = instrument || (al.minTradeVolume.IsPositive() && !budget.LessThan(al.minTradeVolume))

		switch {
		case dir == shortage:
			l.limit, _ = a.TargetValue.Sub(a.MinValue).QuoRem(l.unit, 0)
			l.bounded = true
		case a.MaxValue != nil:
			l.limit, _ = a.MaxValue.Sub(a.TargetValue).QuoRem(l.unit, 0)
			l.bounded = true
		}
		if l.limit.IsNegative() {
			l.limit = decimal.Zero
		}
		out = append(out, l)
	}
	return out
}

// bulk applies in one step the run of picks distribute would make next, and
// reports whether it moved anything. The one-at-a-time loop handles whatever
// bulk leaves.
func (al *allocator) bulk(assets []*Asset, correctable []bool, total, balance decimal.Decimal, best *trade, dir direction) (decimal.Decimal, bool) {
	budget := balance.Abs()
	lanes := al.lanes(assets, correctable, total, budget, dir)

	counts := make([]decimal.Decimal, len(lanes))
	if best.impact.unbounded {
		// Zero weights are emptied first, lowest index first, until their
		// floor or the balance stops them.
		for i, l := range lanes {
			if l.index != best.index || !l.fixed {
				continue
			}
			k, _ := budget.QuoRem(l.unit, 0)
			if k.GreaterThan(l.limit) {
				k = l.limit
			}
			counts[i] = k
		}
		return al.apply(lanes, counts, balance, dir)
	}

	lo, hi, ok := al.bracket(lanes, budget, dir)
	if !ok {
		return balance, false
	}
	if c, ok := al.plan(lanes, hi, budget, dir); ok {
		return al.apply(lanes, c, balance, dir)
	}
	for i := 0; i < bisectSteps; i++ {
		mid := lo.Add(hi).Div(two)
		if c, ok := al.plan(lanes, mid, budget, dir); ok {
			lo, counts = mid, c
		} else {
			hi = mid
		}
	}
	return al.apply(lanes, counts, balance, dir)
}

// bracket returns a level below every next unit and one at or above the last
// unit that could matter. ok is false when no lane has a fixed unit.
func (al *allocator) bracket(lanes []lane, budget decimal.Decimal, dir direction) (lo, hi decimal.Decimal, ok bool) {
	first := true
	for _, l := range lanes {
		if l.ideal.IsZero() {
			continue
		}
		next := l.level(decimal.NewFromInt(1), dir)
		if first || next.LessThan(lo) {
			lo = next
		}
		first = false

		if !l.fixed {
			continue
		}
		n, _ := budget.QuoRem(l.unit, 0)
		n = n.Add(decimal.NewFromInt(1))
		if l.bounded && n.GreaterThan(l.limit) {
			n = l.limit
		}
		if last := l.level(n, dir); !ok || last.GreaterThan(hi) {
			hi = last
		}
		ok = true
	}
	return lo.Sub(one), hi, ok
}

// plan returns the unit counts at level x, or false when they overspend the
// budget or a group would have taken the rest before them.
func (al *allocator) plan(lanes []lane, x, budget decimal.Decimal, dir direction) ([]decimal.Decimal, bool) {
	counts := make([]decimal.Decimal, len(lanes))
	spent := decimal.Zero
	for i, l := range lanes {
		if !l.fixed || l.ideal.IsZero() {
			continue
		}
		counts[i] = l.count(x, dir)
		spent = spent.Add(counts[i].Mul(l.unit))
	}
	if spent.GreaterThan(budget) {
		return nil, false
	}

	left := budget.Sub(spent)
	if !left.IsPositive() {
		return counts, true
	}
	for i, l := range lanes {
		if _, ok := l.asset.Holding.(Group); !ok {
			continue
		}
		if al.minTradeVolume.IsPositive() && !left.LessThan(al.minTradeVolume) {
			continue
		}
		// Level of the group taking all that is left.
		moved := counts[i].Mul(l.unit)
		n := left
		if dir == shortage {
			n = n.Sub(l.asset.TargetValue.Sub(moved))
		} else {
			n = n.Add(l.asset.TargetValue.Add(moved))
		}
		if !n.GreaterThan(x.Mul(l.ideal)) {
			return nil, false
		}
	}
	return counts, true
}

func (al *allocator) apply(lanes []lane, counts []decimal.Decimal, balance decimal.Decimal, dir direction) (decimal.Decimal, bool) {
	moved := false
	for i, l := range lanes {
		if counts[i].IsZero() {
			continue
		}
		volume := counts[i].Mul(l.unit)
		if dir == shortage {
			al.set(l.asset, l.asset.TargetValue.Sub(volume), ReasonRedistribution)
			balance = balance.Add(volume)
		} else {
			al.set(l.asset, l.asset.TargetValue.Add(volume), ReasonRedistribution)
			balance = balance.Sub(volume)
		}
		moved = true
	}
	return balance, moved
}
