// Package portfolio turns a configured weight tree plus broker holdings into
// an allocation tree.
package portfolio

import (
	"errors"
	"fmt"
	"sort"

	"longbridge-rebalance/internal/account"
	"longbridge-rebalance/internal/allocation"
	"longbridge-rebalance/internal/config"
	"longbridge-rebalance/internal/market"

	"github.com/shopspring/decimal"
)

// CashPrice is the lot size of the cash instrument: cash moves in cents.
var CashPrice = decimal.New(1, -2)

// ErrMissingPrice is returned when a configured symbol has no price.
var ErrMissingPrice = errors.New("missing price")

// Holdings is what the account holds at the moment of the rebalance.
type Holdings struct {
	Quantities map[string]decimal.Decimal
	Prices     map[string]decimal.Decimal
	Cash       decimal.Decimal
	// Deposit is added to the total; a negative deposit is a withdrawal.
	Deposit decimal.Decimal
}

// Built is an allocation tree together with what was left out of it.
type Built struct {
	Portfolio *allocation.Portfolio
	// Unmanaged lists held symbols that are not part of the tree. Their
	// value is not counted in the total.
	Unmanaged []string
}

// Build creates the allocation tree for cfg. Every configured symbol other
// than the cash symbol needs a price.
func Build(cfg *config.Portfolio, h Holdings) (Built, error) {
	managed := map[string]bool{}
	assets, err := buildNodes(cfg, cfg.Assets, h, managed)
	if err != nil {
		return Built{}, err
	}

	total := h.Deposit
	for _, a := range assets {
		total = total.Add(a.CurrentValue)
	}
	if !managed[cfg.CashSymbol] {
		total = total.Add(h.Cash)
	}

	var unmanaged []string
	for symbol, qty := range h.Quantities {
		if !managed[symbol] && !qty.IsZero() {
			unmanaged = append(unmanaged, symbol)
		}
	}
	sort.Strings(unmanaged)

	return Built{
		Portfolio: &allocation.Portfolio{
			Name:           cfg.Name,
			Assets:         assets,
			TotalValue:     total,
			MinTradeVolume: cfg.MinTradeVolume.Decimal,
		},
		Unmanaged: unmanaged,
	}, nil
}

func buildNodes(cfg *config.Portfolio, nodes []config.AssetConfig, h Holdings, managed map[string]bool) ([]*allocation.Asset, error) {
	assets := make([]*allocation.Asset, 0, len(nodes))
	for _, n := range nodes {
		var a *allocation.Asset
		switch {
		case len(n.Assets) > 0:
			children, err := buildNodes(cfg, n.Assets, h, managed)
			if err != nil {
				return nil, err
			}
			a = allocation.NewGroup(n.Name, n.Weight.Decimal, children...)

		case cfg.CashSymbol != "" && n.Symbol == cfg.CashSymbol:
			a = allocation.NewInstrument(n.Name, n.Symbol, n.Weight.Decimal, h.Cash, CashPrice)

		default:
			price, ok := h.Prices[n.Symbol]
			if !ok {
				return nil, fmt.Errorf("%s (%s): %w", n.Name, n.Symbol, ErrMissingPrice)
			}
			current := h.Quantities[n.Symbol].Mul(price)
			a = allocation.NewInstrument(n.Name, n.Symbol, n.Weight.Decimal, current, price)
		}

		a.RestrictBuying = n.RestrictBuying
		a.RestrictSelling = n.RestrictSelling
		if n.Symbol != "" {
			managed[n.Symbol] = true
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// PricedSymbols returns the configured symbols that need a market price.
func PricedSymbols(cfg *config.Portfolio) []string {
	var out []string
	for _, s := range cfg.Symbols() {
		if s != cfg.CashSymbol {
			out = append(out, s)
		}
	}
	return out
}

// FromFS builds the tree from the longbridge-fs layout under root:
// account/state.json for holdings and quote/hold/*/overview.json for prices.
func FromFS(root string, cfg *config.Portfolio, deposit decimal.Decimal) (Built, error) {
	state, err := account.LoadState(root)
	if err != nil {
		return Built{}, err
	}
	prices, err := market.Prices(root, PricedSymbols(cfg))
	if err != nil {
		return Built{}, err
	}
	cash, err := account.Cash(state, cfg.Currency)
	if err != nil {
		return Built{}, fmt.Errorf("portfolio %q: set currency: %w", cfg.Name, err)
	}
	return Build(cfg, Holdings{
		Quantities: account.Quantities(state),
		Prices:     prices,
		Cash:       cash,
		Deposit:    deposit,
	})
}
