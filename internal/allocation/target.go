package allocation

import (
	"github.com/shopspring/decimal"
)

// Residual is the balance a group could not place among its children. A
// positive amount is money left unallocated, a negative one is an overdraft.
type Residual struct {
	Group  string
	Amount decimal.Decimal
}

// Allocation is the outcome of a top-down target value pass.
type Allocation struct {
	// Balance is what the assets could not absorb, leftovers of sub-groups
	// included.
	Balance decimal.Decimal
	// Residuals lists every group, top level included, that kept a non-zero
	// balance, in tree order.
	Residuals []Residual
}

type direction int

const (
	// shortage removes trade units while the balance is negative.
	shortage direction = iota
	// surplus adds trade units while the balance is positive.
	surplus
)

type allocator struct {
	tracer
	minTradeVolume decimal.Decimal
	residuals      []Residual
}

// Overdrawn reports whether any group, at any depth, was left with more
// target value in its children than it had to give.
func (a Allocation) Overdrawn() bool {
	if a.Balance.IsNegative() {
		return true
	}
	for _, res := range a.Residuals {
		if res.Amount.IsNegative() {
			return true
		}
	}
	return false
}

// allocate distributes total among assets and recurses into groups. It
// returns the balance left at this level plus what the sub-groups left.
func (al *allocator) allocate(name string, assets []*Asset, total decimal.Decimal) decimal.Decimal {
	for _, a := range assets {
		al.set(a, total.Mul(a.ExpectedWeight), ReasonInitial)
	}

	balance := decimal.Zero

	for _, a := range assets {
		rounded := al.round(a)
		if !rounded.Equal(a.TargetValue) {
			balance = balance.Add(a.TargetValue.Sub(rounded))
			al.set(a, rounded, ReasonRounding)
		}
	}

	// Caps first so that released money can cover the floors below.
	for _, a := range assets {
		if a.MaxValue != nil && a.TargetValue.GreaterThan(*a.MaxValue) {
			balance = balance.Add(a.TargetValue.Sub(*a.MaxValue))
			al.set(a, *a.MaxValue, ReasonBuyBlocked)
			a.BuyBlocked = true
		}
	}

	for _, a := range assets {
		if a.TargetValue.LessThan(a.MinValue) {
			balance = balance.Add(a.TargetValue.Sub(a.MinValue))
			al.set(a, a.MinValue, ReasonSellBlocked)
			a.SellBlocked = true
		}
	}

	balance = al.distribute(assets, total, balance, shortage)
	balance = al.distribute(assets, total, balance, surplus)

	if !balance.IsZero() {
		al.residuals = append(al.residuals, Residual{Group: name, Amount: balance})
		if al.fn != nil {
			al.fn(Record{Node: name, Previous: total, Value: balance, Reason: ReasonResidual})
		}
	}

	for _, a := range assets {
		if g, ok := a.Holding.(Group); ok {
			balance = balance.Add(al.allocate(a.FullName(), g.Assets, a.TargetValue))
		}
	}

	return balance
}

// round snaps the change of an instrument to whole lots and drops changes too
// small to be worth a trade.
func (al *allocator) round(a *Asset) decimal.Decimal {
	diff := a.TargetValue.Sub(a.CurrentValue)
	if inst, ok := a.Holding.(Instrument); ok {
		diff = diff.Div(inst.Price).Round(0).Mul(inst.Price)
	}
	if diff.Abs().LessThan(al.minTradeVolume) {
		diff = decimal.Zero
	}

	target := a.CurrentValue.Add(diff)
	if target.IsNegative() {
		// Can't sell more than the whole position.
		target = decimal.Zero
	}
	return target
}

// unit is the smallest change worth making to a. Instruments trade in whole
// lots covering at least the minimum trade volume. Groups redistribute
// internally, so they can take the exact remaining balance.
func (al *allocator) unit(a *Asset, remaining decimal.Decimal) decimal.Decimal {
	if inst, ok := a.Holding.(Instrument); ok {
		lots := al.minTradeVolume.Div(inst.Price).Ceil()
		if lots.LessThan(decimal.NewFromInt(1)) {
			lots = decimal.NewFromInt(1)
		}
		return lots.Mul(inst.Price)
	}
	if al.minTradeVolume.IsZero() || remaining.LessThan(al.minTradeVolume) {
		return remaining
	}
	return al.minTradeVolume
}

type trade struct {
	index  int
	volume decimal.Decimal
	impact impact
}

// impact ranks candidate trades: the higher, the less the trade disturbs the
// weight proportions. unbounded ranks above every finite value.
type impact struct {
	value     decimal.Decimal
	unbounded bool
}

func (i impact) greater(o impact) bool {
	if i.unbounded || o.unbounded {
		return i.unbounded && !o.unbounded
	}
	return i.value.GreaterThan(o.value)
}

// distribute moves the balance toward zero by trade units, always picking the
// child whose post-trade value stays closest to its ideal share. Ties go to
// the child listed first. Runs of picks that cannot change the outcome are
// applied in one step by bulk.
func (al *allocator) distribute(assets []*Asset, total, balance decimal.Decimal, dir direction) decimal.Decimal {
	correctable := make([]bool, len(assets))
	for i := range correctable {
		correctable[i] = true
	}

	for pending(balance, dir) {
		var best *trade

		for i, a := range assets {
			if !correctable[i] {
				continue
			}

			volume := al.unit(a, balance.Abs())
			candidate, ok := al.candidate(a, volume, balance, dir)
			if !ok {
				correctable[i] = false
				continue
			}

			ideal := total.Mul(a.ExpectedWeight)
			var rank impact
			switch {
			case dir == shortage && ideal.IsZero():
				rank = impact{unbounded: true}
			case dir == shortage:
				rank = impact{value: candidate.Div(ideal)}
			case ideal.IsZero():
				// Never buy into a zero weight.
				correctable[i] = false
				continue
			default:
				rank = impact{value: ideal.Div(candidate)}
			}

			if best == nil || rank.greater(best.impact) {
				best = &trade{index: i, volume: volume, impact: rank}
			}
		}

		if best == nil {
			break
		}

		if next, moved := al.bulk(assets, correctable, total, balance, best, dir); moved {
			balance = next
			continue
		}

		a := assets[best.index]
		if dir == shortage {
			al.set(a, a.TargetValue.Sub(best.volume), ReasonRedistribution)
			balance = balance.Add(best.volume)
		} else {
			al.set(a, a.TargetValue.Add(best.volume), ReasonRedistribution)
			balance = balance.Sub(best.volume)
		}
	}

	return balance
}

// candidate returns the post-trade target of a, or false when the trade would
// cross a bound or, in a surplus pass, spend more than the balance.
func (al *allocator) candidate(a *Asset, volume, balance decimal.Decimal, dir direction) (decimal.Decimal, bool) {
	if dir == shortage {
		target := a.TargetValue.Sub(volume)
		return target, !target.LessThan(a.MinValue)
	}

	if volume.GreaterThan(balance) {
		return decimal.Zero, false
	}
	target := a.TargetValue.Add(volume)
	if a.MaxValue != nil && target.GreaterThan(*a.MaxValue) {
		return decimal.Zero, false
	}
	return target, true
}

func pending(balance decimal.Decimal, dir direction) bool {
	if dir == shortage {
		return balance.IsNegative()
	}
	return balance.IsPositive()
}
