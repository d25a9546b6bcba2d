package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dkatz-labs/arbot/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "arbot",
	Short: "A cross-venue DEX arbitrage bot",
	Long: `A bot that watches liquidity pools across multiple exchange venues,
detects round-trip price discrepancies, and executes two-leg trades
when the net profit after gas clears the configured threshold.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug)
}
