package allocation

import (
	"github.com/shopspring/decimal"
)

// Status is the overall outcome of a rebalance.
type Status int

const (
	// StatusOK means every requested total was reached.
	StatusOK Status = iota
	// StatusDebt means restrictions kept part of a requested reduction from
	// being realised.
	StatusDebt
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDebt:
		return "debt"
	default:
		return "unknown"
	}
}

// Outcome is the result of the debt resolver for one set of assets.
type Outcome struct {
	Status Status
	Debt   decimal.Decimal
}

var one = decimal.NewFromInt(1)

type resolver struct {
	tracer
	minTradeVolume decimal.Decimal
}

// resolve spreads total across assets by weight while keeping every asset that
// cannot be sold at its current value. Assets that hold out are moved to the
// uncorrectable set and the rest are reweighted around them until the result
// is stable. It returns the amount by which the assets still exceed total.
//
// When a pass makes no asset uncorrectable and debt remains, small sales that
// are normally below the minimum trade volume are forced once to shave it off.
func (r *resolver) resolve(assets []*Asset, total decimal.Decimal) decimal.Decimal {
	correctable := make([]bool, len(assets))
	for i := range correctable {
		correctable[i] = true
	}
	remaining := len(assets)
	forceSelling := false

	for {
		uncorrectableWeight := decimal.Zero
		uncorrectableValue := decimal.Zero
		for i, a := range assets {
			if !correctable[i] {
				uncorrectableWeight = uncorrectableWeight.Add(a.ExpectedWeight)
				uncorrectableValue = uncorrectableValue.Add(a.TargetValue)
			}
		}

		residual := total.Sub(uncorrectableValue)
		debt := decimal.Zero
		if residual.IsNegative() {
			debt = residual.Neg()
			residual = decimal.Zero
		}
		divider := one.Sub(uncorrectableWeight)

		stalled := true

	pass:
		for i, a := range assets {
			if !correctable[i] {
				continue
			}

			share := decimal.Zero
			if divider.IsPositive() {
				share = residual.Mul(a.ExpectedWeight).Div(divider)
			}
			r.set(a, share, ReasonReweight)

			switch h := a.Holding.(type) {
			case Group:
				sub := r.resolve(h.Assets, a.TargetValue)
				if sub.IsPositive() {
					r.set(a, a.TargetValue.Add(sub), ReasonDebt)
					debt = debt.Add(sub)
					correctable[i] = false
					remaining--
					stalled = false
				}

			case Instrument:
				switch {
				case a.CurrentValue.GreaterThan(a.TargetValue):
					sale := a.CurrentValue.Sub(a.TargetValue)

					switch {
					case restricted(a.RestrictSelling) || a.CurrentValue.LessThan(r.minTradeVolume):
						debt = debt.Add(sale)
						r.set(a, a.CurrentValue, ReasonDebt)
						a.SellBlocked = true
						correctable[i] = false
						remaining--
						stalled = false

					case sale.LessThan(r.minTradeVolume) && forceSelling:
						forced := a.CurrentValue.Sub(r.minTradeVolume)
						extra := a.TargetValue.Sub(forced)
						r.set(a, forced, ReasonForceSell)

						debt = debt.Sub(extra)
						if debt.IsNegative() {
							debt = decimal.Zero
						}
						if debt.IsZero() {
							break pass
						}

					case sale.LessThan(r.minTradeVolume):
						debt = debt.Add(sale)
						r.set(a, a.CurrentValue, ReasonDebt)
					}

				case a.TargetValue.GreaterThan(a.CurrentValue) && restricted(a.RestrictBuying):
					// The surplus flows to the others on the next pass.
					r.set(a, a.CurrentValue, ReasonBuyBlocked)
					a.BuyBlocked = true
					correctable[i] = false
					remaining--
					stalled = false
				}
			}
		}

		switch {
		case debt.IsZero() && stalled:
			return decimal.Zero
		case debt.IsZero() && remaining == 0:
			return decimal.Zero
		case remaining == 0:
			return debt
		case stalled && forceSelling:
			return debt
		case stalled:
			forceSelling = true
		}
	}
}
