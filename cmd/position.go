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
var positionCmd = &cobra.Command{
	Use:   "position",
	Short: "Manage open positions (buy filled, sell resting)",
}

//nolint:gochecknoglobals // Cobra boilerplate
var positionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open positions derived from trade history and open sells",
	Args:  cobra.NoArgs,
	RunE:  runPositionList,
}

//nolint:gochecknoglobals // Cobra boilerplate
var positionModifySellCmd = &cobra.Command{
	Use:   "modify-sell <sell-order-id> <new-price>",
	Short: "Replace the resting sell at a new price",
	Args:  cobra.ExactArgs(2),
	RunE:  runPositionModifySell,
}

//nolint:gochecknoglobals // Cobra boilerplate
var positionCloseCmd = &cobra.Command{
	Use:   "close <sell-order-id>",
	Short: "Cancel the resting sell and sell the remaining quantity at market",
	Args:  cobra.ExactArgs(1),
	RunE:  runPositionClose,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(positionCmd)
	positionCmd.AddCommand(positionListCmd, positionModifySellCmd, positionCloseCmd)
}

func runPositionList(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		positions, err := s.Grid.GetOpenPositions(ctx)
		if err != nil {
			return fmt.Errorf("get open positions: %w", err)
		}
		if jsonOutput() {
			return printJSON(positions)
		}
		printPositions(positions)
		return nil
	})
}

func runPositionModifySell(cmd *cobra.Command, args []string) error {
	sellOrderID, err := parseOrderID(args[0])
	if err != nil {
		return err
	}
	price, err := parseFloats(args[1])
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		order, modErr := s.Grid.ModifyPositionSellPrice(ctx, sellOrderID, price[0])
		if modErr != nil {
			return fmt.Errorf("modify sell price: %w", modErr)
		}
		if jsonOutput() {
			return printJSON(order)
		}
		fmt.Printf("Sell %d replaced by %d: %.8g @ %.8g\n", sellOrderID, order.ID, order.Quantity, order.Price)
		return nil
	})
}

func runPositionClose(cmd *cobra.Command, args []string) error {
	sellOrderID, err := parseOrderID(args[0])
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		order, closeErr := s.Grid.ClosePosition(ctx, sellOrderID)
		if closeErr != nil {
			return fmt.Errorf("close position: %w", closeErr)
		}
		if jsonOutput() {
			return printJSON(order)
		}
		fmt.Printf("Position closed: market sell %d, %.8g %s\n", order.ID, order.ExecutedQty, order.Status)
		return nil
	})
}

func printPositions(positions []reconcile.OpenPosition) {
	if len(positions) == 0 {
		fmt.Println("No open positions")
		return
	}

	fmt.Printf("%-12s %-12s %-14s %-14s %-14s %-12s\n",
		"BUY ORDER", "SELL ORDER", "BUY PRICE", "SELL PRICE", "QUANTITY", "EXP. NET")
	var expected float64
	for _, p := range positions {
		fmt.Printf("%-12d %-12d %-14.8g %-14.8g %-14.8g %-12.2f\n",
			p.BuyOrderID, p.SellOrderID, p.BuyPrice, p.SellPrice, p.Quantity, p.Expected.NetProfit)
		expected += p.Expected.NetProfit
	}
	fmt.Printf("\nTotal: %d, expected net profit %.2f\n", len(positions), expected)
}

func parseOrderID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", arg)
	}
	return id, nil
}
