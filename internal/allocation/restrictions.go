package allocation

import "github.com/shopspring/decimal"

// Propagate computes MinValue and MaxValue for every node bottom-up and returns
// the bounds of the whole set of assets.
//
// An instrument that may not be sold keeps at least its current value, and one
// that may not be bought keeps at most its current value. A group's minimum is
// the sum of its children's minimums; its maximum is defined only when every
// child has one.
func Propagate(assets []*Asset) (decimal.Decimal, *decimal.Decimal) {
	totalMin := decimal.Zero
	totalMax := decimal.Zero
	bounded := true

	for _, a := range assets {
		var minValue decimal.Decimal
		var maxValue *decimal.Decimal

		switch h := a.Holding.(type) {
		case Group:
			minValue, maxValue = Propagate(h.Assets)
		case Instrument:
			minValue = decimal.Zero
			if restricted(a.RestrictSelling) {
				minValue = a.CurrentValue
			}
			if restricted(a.RestrictBuying) {
				v := a.CurrentValue
				maxValue = &v
			}
		}

		a.MinValue = minValue
		a.MaxValue = maxValue

		totalMin = totalMin.Add(minValue)
		if maxValue != nil {
			totalMax = totalMax.Add(*maxValue)
		} else {
			bounded = false
		}
	}

	if !bounded {
		return totalMin, nil
	}
	return totalMin, &totalMax
}
