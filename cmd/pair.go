package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mselser95/gridbot/internal/app"
	"github.com/mselser95/gridbot/internal/reconcile"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Manage pending pairs (buy not yet filled)",
}

//nolint:gochecknoglobals // Cobra boilerplate
var pairCreateCmd = &cobra.Command{
	Use:   "create <buy-price> <sell-price> <amount>",
	Short: "Place a limit buy and record the sell price to use once it fills",
	Long: `Places a limit buy for amount/buy-price of the base asset and records the
pair. The sell is placed by the running bot after the buy fills.

Examples:
  # Buy 1000 USDT worth of BTC at 60000, sell at 63000
  gridbot pair create 60000 63000 1000`,
	Args: cobra.ExactArgs(3),
	RunE: runPairCreate,
}

//nolint:gochecknoglobals // Cobra boilerplate
var pairListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending pairs",
	Args:  cobra.NoArgs,
	RunE:  runPairList,
}

//nolint:gochecknoglobals // Cobra boilerplate
var pairModifyBuyCmd = &cobra.Command{
	Use:   "modify-buy <pair-id> <new-price>",
	Short: "Replace the resting buy at a new price, keeping the invested amount",
	Args:  cobra.ExactArgs(2),
	RunE:  runPairModifyBuy,
}

//nolint:gochecknoglobals // Cobra boilerplate
var pairModifySellCmd = &cobra.Command{
	Use:   "modify-sell <pair-id> <new-price>",
	Short: "Change the sell price a pending pair will use",
	Args:  cobra.ExactArgs(2),
	RunE:  runPairModifySell,
}

//nolint:gochecknoglobals // Cobra boilerplate
var pairCancelCmd = &cobra.Command{
	Use:   "cancel <pair-id>",
	Short: "Cancel the buy and forget the pair",
	Args:  cobra.ExactArgs(1),
	RunE:  runPairCancel,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(pairCmd)
	pairCmd.AddCommand(pairCreateCmd, pairListCmd, pairModifyBuyCmd, pairModifySellCmd, pairCancelCmd)
}

func runPairCreate(cmd *cobra.Command, args []string) error {
	prices, err := parseFloats(args...)
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		pair, createErr := s.Grid.CreatePair(ctx, prices[0], prices[1], prices[2])
		if createErr != nil {
			return fmt.Errorf("create pair: %w", createErr)
		}
		if jsonOutput() {
			return printJSON(pair)
		}
		fmt.Printf("Created pair %s\n", pair.ID)
		fmt.Printf("  Buy order:  %d @ %.8g x %.8g\n", pair.BuyOrderID, pair.BuyPrice, pair.Quantity)
		fmt.Printf("  Sell price: %.8g\n", pair.SellPrice)
		fmt.Printf("  Invested:   %.2f\n", pair.InvestedAmount)
		return nil
	})
}

func runPairList(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(_ context.Context, s *app.Session) error {
		pairs := s.Grid.GetPendingPairs()
		if jsonOutput() {
			return printJSON(pairs)
		}
		printPairs(pairs)
		return nil
	})
}

func runPairModifyBuy(cmd *cobra.Command, args []string) error {
	price, err := parseFloats(args[1])
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		pair, modErr := s.Grid.ModifyBuyPrice(ctx, args[0], price[0])
		if modErr != nil {
			return fmt.Errorf("modify buy price: %w", modErr)
		}
		if jsonOutput() {
			return printJSON(pair)
		}
		fmt.Printf("Pair %s now buys %.8g @ %.8g (order %d)\n", pair.ID, pair.Quantity, pair.BuyPrice, pair.BuyOrderID)
		return nil
	})
}

func runPairModifySell(cmd *cobra.Command, args []string) error {
	price, err := parseFloats(args[1])
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		modErr := s.Grid.ModifyPairSellPrice(ctx, args[0], price[0])
		if modErr != nil {
			return fmt.Errorf("modify sell price: %w", modErr)
		}
		fmt.Printf("Pair %s will sell at %.8g\n", args[0], price[0])
		return nil
	})
}

func runPairCancel(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		cancelErr := s.Grid.CancelPair(ctx, args[0])
		if cancelErr != nil {
			return fmt.Errorf("cancel pair: %w", cancelErr)
		}
		fmt.Printf("Pair %s canceled\n", args[0])
		return nil
	})
}

func printPairs(pairs []reconcile.PairStatus) {
	if len(pairs) == 0 {
		fmt.Println("No pending pairs")
		return
	}

	fmt.Printf("%-36s %-12s %-14s %-14s %-14s %-12s %-12s\n",
		"PAIR", "BUY ORDER", "BUY PRICE", "SELL PRICE", "QUANTITY", "INVESTED", "STATE")
	for _, st := range pairs {
		p := st.Pair
		fmt.Printf("%-36s %-12d %-14.8g %-14.8g %-14.8g %-12.2f %-12s\n",
			p.ID, p.BuyOrderID, p.BuyPrice, p.SellPrice, p.Quantity, p.InvestedAmount, st.State)
	}
	fmt.Printf("\nTotal: %d\n", len(pairs))
}

func parseFloats(args ...string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", a, err)
		}
		out[i] = v
	}
	return out, nil
}
