package main

import (
	"encoding/json"
	"fmt"
	"time"

	"longbridge-rebalance/internal/allocation"
	"longbridge-rebalance/internal/config"
	"longbridge-rebalance/internal/ledger"
	"longbridge-rebalance/internal/orders"
	"longbridge-rebalance/internal/portfolio"
	"longbridge-rebalance/internal/report"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newRebalanceCmd(a *app) *cobra.Command {
	var (
		deposit    string
		writeOrder bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Compute targets and trades from account/state.json and quote/hold",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(deposit)
			if err != nil {
				return fmt.Errorf("--deposit %q: %w", deposit, err)
			}

			pcfg, err := config.LoadPortfolio(a.cfg.PortfolioPath)
			if err != nil {
				return err
			}
			built, err := portfolio.FromFS(a.cfg.Root, pcfg, amount)
			if err != nil {
				return err
			}
			for _, symbol := range built.Unmanaged {
				a.log.Warn().Str("symbol", symbol).Msg("Held symbol is not in the portfolio, ignoring it")
			}

			p := built.Portfolio
			r := allocation.NewRebalancer(a.log, allocation.WithTrace(allocation.LogTrace(a.log)))
			result, err := r.Rebalance(p)
			if err != nil {
				return err
			}

			trades := orders.Plan(p, pcfg.CashSymbol)
			rep := report.Build(p, result, trades, report.Options{
				Currency:  pcfg.Currency,
				Unmanaged: built.Unmanaged,
				Now:       time.Now(),
			})
			if err := report.WriteJSON(report.Path(a.cfg.Root), rep); err != nil {
				return fmt.Errorf("write report: %w", err)
			}

			if writeOrder {
				if result.Status == allocation.StatusDebt {
					a.log.Warn().Str("debt", result.Debt.String()).Msg("Writing orders for a portfolio in debt")
				}
				batch := uuid.NewString()
				ids, err := ledger.AppendOrders(ledger.Path(a.cfg.Root), trades, batch, time.Now())
				if err != nil {
					return err
				}
				a.log.Info().Str("batch", batch).Int("orders", len(ids)).Msg("Orders appended to ledger")
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			return report.WriteText(cmd.OutOrStdout(), rep)
		},
	}

	addFSFlags(cmd)
	cmd.Flags().StringVar(&deposit, "deposit", "0", "cash to add before rebalancing (negative to withdraw)")
	cmd.Flags().BoolVar(&writeOrder, "orders", false, "append ORDER intents to trade/beancount.txt")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
