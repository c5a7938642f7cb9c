package main

import (
	"fmt"
	"os"

	"longbridge-rebalance/internal/config"
	"longbridge-rebalance/internal/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Set by ldflags at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// app is the state shared by every command.
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "longbridge-rebalance",
		Short:         "Rebalance a longbridge-fs portfolio toward its target weights",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("root") {
				cfg.Root, _ = flags.GetString("root")
			}
			if flags.Changed("portfolio") {
				cfg.PortfolioPath, _ = flags.GetString("portfolio")
			}
			if flags.Changed("credential") {
				cfg.CredentialPath, _ = flags.GetString("credential")
			}
			if flags.Changed("port") {
				cfg.Port, _ = flags.GetInt("port")
			}
			if flags.Changed("log-level") {
				cfg.LogLevel, _ = flags.GetString("log-level")
			}
			if flags.Changed("pretty") {
				cfg.LogPretty, _ = flags.GetBool("pretty")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a.cfg = cfg
			a.log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: cmd.ErrOrStderr()})
			logger.SetGlobalLogger(a.log)
			return nil
		},
	}

	root.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().Bool("pretty", false, "human-readable console logs")

	root.AddCommand(
		newRebalanceCmd(a),
		newSyncCmd(a),
		newServeCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			// Skip configuration loading.
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "longbridge-rebalance %s (built %s)\n", Version, BuildTime)
			},
		},
	)
	return root
}

// addFSFlags registers the flags locating the longbridge-fs tree.
func addFSFlags(cmd *cobra.Command) {
	cmd.Flags().String("root", ".", "longbridge-fs root directory")
	cmd.Flags().String("portfolio", "portfolio.yaml", "portfolio file")
}
