// Package report renders the outcome of a rebalance as a terminal table and
// as trade/rebalance.json.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"longbridge-rebalance/internal/allocation"
	"longbridge-rebalance/internal/model"
	"longbridge-rebalance/internal/orders"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"
)

// Path returns the location of trade/rebalance.json under root.
func Path(root string) string {
	return filepath.Join(root, "trade", "rebalance.json")
}

// Options carries what the tree itself does not know.
type Options struct {
	Currency  string
	Unmanaged []string
	Now       time.Time
}

// Build flattens a rebalanced tree into a report.
func Build(p *allocation.Portfolio, result allocation.Result, trades []model.Trade, opts Options) model.RebalanceReport {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	r := model.RebalanceReport{
		UpdatedAt:      now.UTC().Format(time.RFC3339),
		Portfolio:      p.Name,
		Currency:       opts.Currency,
		TotalValue:     p.TotalValue,
		MinTradeVolume: p.MinTradeVolume,
		Status:         result.Status.String(),
		Debt:           result.Debt,
		Unallocated:    result.Unallocated,
		Resolved:       result.Resolved,
		Unmanaged:      opts.Unmanaged,
		Nodes:          []model.NodeReport{},
		Trades:         trades,
	}
	if r.Trades == nil {
		r.Trades = []model.Trade{}
	}
	for _, res := range result.Residuals {
		r.Residuals = append(r.Residuals, model.ResidualReport{Group: res.Group, Amount: res.Amount})
	}

	addNodes(&r, p.Assets, 0, allocation.SumCurrent(p.Assets), p.TotalValue)
	return r
}

func addNodes(r *model.RebalanceReport, assets []*allocation.Asset, depth int, parentCurrent, parentTarget decimal.Decimal) {
	for _, a := range assets {
		n := model.NodeReport{
			Name:          a.FullName(),
			Depth:         depth,
			Weight:        a.ExpectedWeight,
			CurrentValue:  a.CurrentValue,
			TargetValue:   a.TargetValue,
			Change:        a.TargetValue.Sub(a.CurrentValue),
			CurrentWeight: share(a.CurrentValue, parentCurrent),
			TargetWeight:  share(a.TargetValue, parentTarget),
			MinValue:      a.MinValue,
			MaxValue:      a.MaxValue,
			BuyBlocked:    a.BuyBlocked,
			SellBlocked:   a.SellBlocked,
		}
		if inst, ok := a.Instrument(); ok {
			n.Symbol = inst.Symbol
		}
		r.Nodes = append(r.Nodes, n)
		addNodes(r, a.Children(), depth+1, a.CurrentValue, a.TargetValue)
	}
}

func share(value, of decimal.Decimal) decimal.Decimal {
	if of.IsZero() {
		return decimal.Zero
	}
	return value.DivRound(of, 4)
}

// WriteJSON writes r as indented JSON to path.
func WriteJSON(path string, r model.RebalanceReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	buyStyle    = numberStyle.Foreground(lipgloss.Color("#00FFB2"))
	sellStyle   = numberStyle.Foreground(lipgloss.Color("#E94090"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD300"))
)

// WriteText renders r for a terminal.
func WriteText(w io.Writer, r model.RebalanceReport) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Portfolio: %s\n", r.Portfolio))
	sb.WriteString(fmt.Sprintf("Total:     %s %s\n", money(r.TotalValue), r.Currency))
	sb.WriteString(fmt.Sprintf("Status:    %s\n", r.Status))
	if r.Debt.IsPositive() {
		sb.WriteString(warnStyle.Render(fmt.Sprintf("Debt:      %s (restrictions block this much of the requested reduction)", money(r.Debt))) + "\n")
	}
	if r.Unallocated.IsPositive() {
		sb.WriteString(fmt.Sprintf("Unallocated: %s\n", money(r.Unallocated)))
	}
	for _, res := range r.Residuals {
		sb.WriteString(fmt.Sprintf("Residual:  %s %s\n", res.Group, money(res.Amount)))
	}
	if len(r.Unmanaged) > 0 {
		sb.WriteString(fmt.Sprintf("Unmanaged: %s\n", strings.Join(r.Unmanaged, ", ")))
	}
	sb.WriteString("\n")

	nodes := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Asset", "Symbol", "Weight", "Current", "Target", "Change", "Now %", "After %", "Flags").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col >= 2 && col <= 7:
				return numberStyle
			}
			return cellStyle
		})
	for _, n := range r.Nodes {
		nodes.Row(
			strings.Repeat("  ", n.Depth)+lastName(n.Name),
			n.Symbol,
			percent(n.Weight),
			money(n.CurrentValue),
			money(n.TargetValue),
			signed(n.Change),
			percent(n.CurrentWeight),
			percent(n.TargetWeight),
			flags(n),
		)
	}
	sb.WriteString(nodes.String())
	sb.WriteString("\n")

	if len(r.Trades) == 0 {
		sb.WriteString("\nNo trades.\n")
	} else {
		trades := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("Side", "Symbol", "Qty", "Price", "Value", "Asset").
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == table.HeaderRow:
					return headerStyle
				case col == 0 && row >= 0 && row < len(r.Trades):
					if r.Trades[row].Side == model.SideBuy {
						return buyStyle.Align(lipgloss.Left)
					}
					return sellStyle.Align(lipgloss.Left)
				case col >= 2 && col <= 4:
					return numberStyle
				}
				return cellStyle
			})
		for _, t := range r.Trades {
			trades.Row(string(t.Side), t.Symbol, t.Quantity.String(), t.Price.String(), money(t.Value), t.Asset)
		}
		bought, sold := orders.Totals(r.Trades)
		sb.WriteString("\n")
		sb.WriteString(trades.String())
		sb.WriteString(fmt.Sprintf("\nSell %s, buy %s\n", money(sold), money(bought)))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func lastName(full string) string {
	if i := strings.LastIndex(full, " / "); i >= 0 {
		return full[i+3:]
	}
	return full
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + money(d)
	}
	return money(d)
}

func percent(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(1)
}

func flags(n model.NodeReport) string {
	var out []string
	if n.BuyBlocked {
		out = append(out, "buy-blocked")
	}
	if n.SellBlocked {
		out = append(out, "sell-blocked")
	}
	return strings.Join(out, ",")
}
