// Package allocation computes target values for a hierarchical tree of asset
// groups and priced instruments so that a portfolio moves toward its configured
// weights without breaking buy/sell restrictions, minimum trade volumes or lot
// sizes.
//
// A rebalance is a single synchronous call that mutates the tree in place:
// bounds are propagated bottom-up, targets are distributed top-down and, when
// restrictions make the requested total unreachable, the debt resolver reports
// the shortfall. No state survives between calls.
package allocation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// nameSeparator joins ancestor names into a node's full name.
const nameSeparator = " / "

// Portfolio is the root of an allocation tree.
type Portfolio struct {
	Name           string
	Assets         []*Asset
	TotalValue     decimal.Decimal
	MinTradeVolume decimal.Decimal
}

// Holding is what an Asset holds: either a Group of nested assets or a priced
// Instrument. No other implementations exist.
type Holding interface {
	isHolding()
}

// Group is an ordered set of child assets sharing their parent's target value.
type Group struct {
	Assets []*Asset
}

// Instrument is a tradable security bought and sold in whole units of Price.
type Instrument struct {
	Symbol string
	Price  decimal.Decimal
}

func (Group) isHolding()      {}
func (Instrument) isHolding() {}

// Asset is a node of the allocation tree.
type Asset struct {
	Name           string
	ExpectedWeight decimal.Decimal
	CurrentValue   decimal.Decimal

	// Caller-supplied restrictions. Nil means unrestricted.
	RestrictBuying  *bool
	RestrictSelling *bool

	// Computed by the engine.
	TargetValue decimal.Decimal
	MinValue    decimal.Decimal
	MaxValue    *decimal.Decimal
	BuyBlocked  bool
	SellBlocked bool

	Holding Holding

	parent *Asset
}

// NewGroup creates a group node and adopts the given children.
func NewGroup(name string, weight decimal.Decimal, children ...*Asset) *Asset {
	a := &Asset{
		Name:           name,
		ExpectedWeight: weight,
		Holding:        Group{Assets: children},
	}
	for _, child := range children {
		child.parent = a
	}
	a.CurrentValue = SumCurrent(children)
	return a
}

// NewInstrument creates an instrument node holding currentValue worth of symbol.
func NewInstrument(name, symbol string, weight, currentValue, price decimal.Decimal) *Asset {
	return &Asset{
		Name:           name,
		ExpectedWeight: weight,
		CurrentValue:   currentValue,
		Holding:        Instrument{Symbol: symbol, Price: price},
	}
}

// FullName returns the node name prefixed by the names of its ancestors.
func (a *Asset) FullName() string {
	names := []string{a.Name}
	for p := a.parent; p != nil; p = p.parent {
		names = append(names, p.Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, nameSeparator)
}

// Children returns the child nodes of a group, or nil for an instrument.
func (a *Asset) Children() []*Asset {
	if g, ok := a.Holding.(Group); ok {
		return g.Assets
	}
	return nil
}

// Instrument returns the instrument holding and true if the node is one.
func (a *Asset) Instrument() (Instrument, bool) {
	inst, ok := a.Holding.(Instrument)
	return inst, ok
}

// Walk visits every node depth-first in tree order, parents before children.
func Walk(assets []*Asset, fn func(*Asset)) {
	for _, a := range assets {
		fn(a)
		Walk(a.Children(), fn)
	}
}

// Restrict is a convenience for building the optional restriction flags.
func Restrict(v bool) *bool {
	return &v
}

func restricted(flag *bool) bool {
	return flag != nil && *flag
}

// link sets parent pointers for trees built from literals rather than the
// constructors.
func link(parent *Asset, assets []*Asset) {
	for _, a := range assets {
		a.parent = parent
		link(a, a.Children())
	}
}

// reset clears every engine-computed field before a new pass.
func reset(assets []*Asset) {
	Walk(assets, func(a *Asset) {
		a.TargetValue = decimal.Zero
		a.MinValue = decimal.Zero
		a.MaxValue = nil
		a.BuyBlocked = false
		a.SellBlocked = false
	})
}

// SumCurrent returns the sum of the current values of assets.
func SumCurrent(assets []*Asset) decimal.Decimal {
	total := decimal.Zero
	for _, a := range assets {
		total = total.Add(a.CurrentValue)
	}
	return total
}

// SumTargets returns the sum of the target values of assets.
func SumTargets(assets []*Asset) decimal.Decimal {
	total := decimal.Zero
	for _, a := range assets {
		total = total.Add(a.TargetValue)
	}
	return total
}
