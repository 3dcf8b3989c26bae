package cmd

import (
	"context"
	"fmt"

	"github.com/mselser95/gridbot/internal/app"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show base and quote balances valued at the current price",
	Args:  cobra.NoArgs,
	RunE:  runBalance,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		balance, err := s.Grid.GetAccountBalance(ctx)
		if err != nil {
			return fmt.Errorf("get account balance: %w", err)
		}
		if jsonOutput() {
			return printJSON(balance)
		}

		base, quote := s.Exchange.Assets()
		fmt.Printf("=== %s Balance ===\n\n", s.Exchange.Symbol())
		fmt.Printf("%-6s free %-16.8f locked %-16.8f\n", base, balance.Base.Free, balance.Base.Locked)
		fmt.Printf("%-6s free %-16.8f locked %-16.8f\n", quote, balance.Quote.Free, balance.Quote.Locked)
		fmt.Printf("\nPrice:       %.8g\n", balance.Price)
		fmt.Printf("%s value:   %.2f %s\n", base, balance.BaseValue, quote)
		fmt.Printf("Total value: %.2f %s\n", balance.TotalValue, quote)
		return nil
	})
}
