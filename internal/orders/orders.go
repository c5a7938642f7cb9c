// Package orders turns a rebalanced allocation tree into whole-unit trades.
package orders

import (
	"sort"

	"longbridge-rebalance/internal/allocation"
	"longbridge-rebalance/internal/model"

	"github.com/shopspring/decimal"
)

// Plan returns the trades that move every instrument from its current value
// to its target. Quantities are whole units. Buys round down so they never
// spend more than planned. Sells round up, to at most the units held, so that
// targets left between lots still raise what the buys need. Symbols in skip
// (typically the cash symbol) are never traded.
//
// Sells come first so that their proceeds fund the buys. Within each side,
// larger trades come first.
func Plan(p *allocation.Portfolio, skip ...string) []model.Trade {
	excluded := make(map[string]bool, len(skip))
	for _, s := range skip {
		excluded[s] = true
	}

	var trades []model.Trade
	allocation.Walk(p.Assets, func(a *allocation.Asset) {
		inst, ok := a.Instrument()
		if !ok || excluded[inst.Symbol] {
			return
		}

		diff := a.TargetValue.Sub(a.CurrentValue)
		units := diff.Abs().Div(inst.Price)

		side := model.SideBuy
		qty := units.Truncate(0)
		if diff.IsNegative() {
			side = model.SideSell
			qty = units.Ceil()
			if held := a.CurrentValue.DivRound(inst.Price, 8).Floor(); qty.GreaterThan(held) {
				qty = held
			}
		}
		if qty.IsZero() {
			return
		}
		trades = append(trades, model.Trade{
			Symbol:   inst.Symbol,
			Asset:    a.FullName(),
			Side:     side,
			Quantity: qty,
			Price:    inst.Price,
			Value:    qty.Mul(inst.Price),
		})
	})

	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Side != trades[j].Side {
			return trades[i].Side == model.SideSell
		}
		return trades[i].Value.GreaterThan(trades[j].Value)
	})
	return trades
}

// Totals returns the value bought and sold by trades.
func Totals(trades []model.Trade) (bought, sold decimal.Decimal) {
	for _, t := range trades {
		if t.Side == model.SideBuy {
			bought = bought.Add(t.Value)
		} else {
			sold = sold.Add(t.Value)
		}
	}
	return bought, sold
}
