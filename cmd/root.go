package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "gridbot",
	Short: "Grid trading bot for a single Binance spot symbol",
	Long: `Grid trading bot that places buy/sell pairs on one Binance spot symbol.

Each pair is a resting limit buy plus the sell price to use once it fills.
A reconciliation loop watches the exchange, places the sell when the buy
fills, and derives open positions and completed round trips from the
account's trade history.

Configuration is read from the environment (and a .env file if present).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "table", "Output format (table, json)")
}
