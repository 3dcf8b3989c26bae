package cmd

import (
	"context"
	"fmt"

	"github.com/mselser95/gridbot/internal/app"
	"github.com/mselser95/gridbot/internal/reconcile"
	"github.com/mselser95/gridbot/pkg/profit"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show completed round trips and the profit summary",
	Long: `Matches the account's recent trade history into completed buy/sell round
trips and prints them newest first, followed by the aggregate profit summary.

Examples:
  # Last 20 round trips
  gridbot history --limit 20

  # Everything in the fetched history window as JSON
  gridbot history --limit 0 --format json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

//nolint:gochecknoglobals // Cobra boilerplate
var historyLimit int

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 50, "Maximum round trips to show (0 for all)")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		completed, err := s.Grid.GetCompletedPairs(ctx, historyLimit)
		if err != nil {
			return fmt.Errorf("get completed pairs: %w", err)
		}
		summary, err := s.Grid.GetProfitSummary(ctx)
		if err != nil {
			return fmt.Errorf("get profit summary: %w", err)
		}

		if jsonOutput() {
			return printJSON(struct {
				Completed []reconcile.CompletedPair `json:"completed"`
				Summary   profit.Summary            `json:"summary"`
			}{completed, summary})
		}
		printHistory(completed, summary)
		return nil
	})
}

func printHistory(completed []reconcile.CompletedPair, summary profit.Summary) {
	if len(completed) == 0 {
		fmt.Println("No completed round trips")
	} else {
		fmt.Printf("%-20s %-14s %-14s %-14s %-10s %-10s %-8s\n",
			"SOLD AT", "BUY PRICE", "SELL PRICE", "QUANTITY", "FEES", "NET", "NET %")
		for _, c := range completed {
			fmt.Printf("%-20s %-14.8g %-14.8g %-14.8g %-10.4f %-10.4f %-8.2f\n",
				c.SellTime.Format("2006-01-02 15:04:05"), c.BuyPrice, c.SellPrice, c.Quantity,
				c.Commission(), c.NetProfit, c.ProfitPercent)
		}
	}

	fmt.Printf("\n=== Profit Summary ===\n")
	fmt.Printf("Round trips:      %d\n", summary.TotalTrades)
	fmt.Printf("Invested:         %.2f\n", summary.TotalInvested)
	fmt.Printf("Gross profit:     %.4f\n", summary.TotalGrossProfit)
	fmt.Printf("Commission:       %.4f\n", summary.TotalCommission)
	fmt.Printf("Net profit:       %.4f\n", summary.TotalNetProfit)
	fmt.Printf("Average profit:   %.2f%%\n", summary.AverageProfitPercent)
}
