package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"longbridge-rebalance/internal/model"

	"github.com/longbridge/openapi-go/trade"
	"github.com/shopspring/decimal"
)

// ErrMixedCurrencies is returned by Cash when no currency is given and the
// account holds cash in more than one.
var ErrMixedCurrencies = errors.New("cash held in several currencies")

// StatePath returns the location of account/state.json under root.
func StatePath(root string) string {
	return filepath.Join(root, "account", "state.json")
}

// LoadState reads /account/state.json.
func LoadState(root string) (model.AccountState, error) {
	var state model.AccountState
	data, err := os.ReadFile(StatePath(root))
	if err != nil {
		return state, fmt.Errorf("read account state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse account state: %w", err)
	}
	return state, nil
}

// RefreshState fetches account balance, positions, and today's orders,
// then writes to /account/state.json.
func RefreshState(ctx context.Context, tc *trade.TradeContext, root string) (model.AccountState, error) {
	state := model.AccountState{
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	// Account balance
	balResp, err := tc.AccountBalance(ctx, &trade.GetAccountBalance{})
	if err != nil {
		return state, fmt.Errorf("account balance: %w", err)
	}
	for _, ab := range balResp {
		for _, ci := range ab.CashInfos {
			state.Cash = append(state.Cash, model.CashEntry{
				Currency:  ci.Currency,
				Available: dec(ci.AvailableCash),
				Frozen:    dec(ci.FrozenCash),
				Settling:  dec(ci.SettlingCash),
				Withdraw:  dec(ci.WithdrawCash),
			})
		}
	}

	// Stock positions
	posResp, err := tc.StockPositions(ctx, []string{})
	if err != nil {
		return state, fmt.Errorf("stock positions: %w", err)
	}
	for _, ch := range posResp {
		for _, p := range ch.Positions {
			state.Positions = append(state.Positions, model.PositionEx{
				Symbol:    p.Symbol,
				Quantity:  parseDecimal(p.Quantity),
				Available: parseDecimal(p.AvailableQuantity),
				CostPrice: dec(p.CostPrice),
				Currency:  p.Currency,
				Market:    string(p.Market),
			})
		}
	}

	// Today's orders are informational only.
	if ordResp, err := tc.TodayOrders(ctx, &trade.GetTodayOrders{}); err == nil {
		for _, o := range ordResp {
			state.Orders = append(state.Orders, model.OrderRef{
				OrderID: o.OrderId,
				Status:  string(o.Status),
			})
		}
	}

	return state, WriteState(root, state)
}

// WriteState writes state to /account/state.json.
func WriteState(root string, state model.AccountState) error {
	if err := os.MkdirAll(filepath.Dir(StatePath(root)), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(StatePath(root), append(data, '\n'), 0644)
}

// Quantities returns the held quantity per symbol. Positions of the same
// symbol reported by several channels are summed; empty positions are skipped.
func Quantities(state model.AccountState) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, pos := range state.Positions {
		if pos.Quantity.IsZero() {
			continue
		}
		out[pos.Symbol] = out[pos.Symbol].Add(pos.Quantity)
	}
	return out
}

// Cash returns the available cash in currency. An empty currency is only
// accepted while the account holds cash in a single currency.
func Cash(state model.AccountState, currency string) (decimal.Decimal, error) {
	total := decimal.Zero
	held := ""
	for _, c := range state.Cash {
		if currency != "" {
			if strings.EqualFold(c.Currency, currency) {
				total = total.Add(c.Available)
			}
			continue
		}
		if c.Available.IsZero() {
			continue
		}
		if held != "" && !strings.EqualFold(held, c.Currency) {
			return decimal.Zero, fmt.Errorf("%w: %s and %s", ErrMixedCurrencies, held, c.Currency)
		}
		held = c.Currency
		total = total.Add(c.Available)
	}
	return total, nil
}

// dec dereferences an optional broker decimal.
func dec(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// parseDecimal parses a broker quantity string, returns 0 on error.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
