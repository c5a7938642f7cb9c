package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"longbridge-rebalance/internal/account"
	"longbridge-rebalance/internal/config"
	"longbridge-rebalance/internal/credential"
	"longbridge-rebalance/internal/market"
	"longbridge-rebalance/internal/portfolio"

	"github.com/longbridge/openapi-go/quote"
	"github.com/longbridge/openapi-go/trade"
	"github.com/spf13/cobra"
)

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh account/state.json and the portfolio quotes from the Longbridge API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSync(ctx, a)
		},
	}
	addFSFlags(cmd)
	cmd.Flags().String("credential", "credential", "credential file path")
	return cmd
}

func runSync(ctx context.Context, a *app) error {
	pcfg, err := config.LoadPortfolio(a.cfg.PortfolioPath)
	if err != nil {
		return err
	}
	cfg, err := credential.Load(a.cfg.CredentialPath)
	if err != nil {
		return err
	}

	tc, err := trade.NewFromCfg(cfg)
	if err != nil {
		return fmt.Errorf("trade context: %w", err)
	}
	state, err := account.RefreshState(ctx, tc, a.cfg.Root)
	if err != nil {
		return err
	}
	a.log.Info().Int("positions", len(state.Positions)).Int("cash", len(state.Cash)).Msg("Account state refreshed")

	qc, err := quote.NewFromCfg(cfg)
	if err != nil {
		return fmt.Errorf("quote context: %w", err)
	}
	symbols := portfolio.PricedSymbols(pcfg)
	if err := market.RefreshOverviews(ctx, qc, a.cfg.Root, symbols, a.log); err != nil {
		return err
	}
	a.log.Info().Int("symbols", len(symbols)).Msg("Quotes refreshed")
	return nil
}
