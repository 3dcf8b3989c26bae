package cmd

import (
	"context"
	"fmt"

	"github.com/mselser95/gridbot/internal/app"
	"github.com/mselser95/gridbot/internal/grid"
	"github.com/mselser95/gridbot/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Inspect and cancel raw open orders on the exchange",
}

//nolint:gochecknoglobals // Cobra boilerplate
var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open orders, grouped into buy/sell pairs where quantities match",
	Args:  cobra.NoArgs,
	RunE:  runOrdersList,
}

//nolint:gochecknoglobals // Cobra boilerplate
var ordersCancelCmd = &cobra.Command{
	Use:   "cancel <order-id> [order-id...]",
	Short: "Cancel open orders by id",
	Long: `Cancel one or more open orders by exchange order id.

The buy of a pending pair is refused; use "pair cancel" for those.
Use --dry-run to preview orders without canceling.

Examples:
  # Preview
  gridbot orders cancel 2001 2002 --dry-run

  # Cancel
  gridbot orders cancel 2001`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOrdersCancel,
}

//nolint:gochecknoglobals // Cobra boilerplate
var dryRunFlag bool

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.AddCommand(ordersListCmd, ordersCancelCmd)
	ordersCancelCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Preview orders without canceling")
}

func runOrdersList(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		open, err := s.Grid.GetOpenOrders(ctx)
		if err != nil {
			return fmt.Errorf("get open orders: %w", err)
		}
		if jsonOutput() {
			return printJSON(open)
		}
		printOpenOrders(open)
		return nil
	})
}

func runOrdersCancel(cmd *cobra.Command, args []string) error {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseOrderID(arg)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	return withSession(cmd, func(ctx context.Context, s *app.Session) error {
		if dryRunFlag {
			open, err := s.Grid.GetOpenOrders(ctx)
			if err != nil {
				return fmt.Errorf("get open orders: %w", err)
			}
			selected := selectOrders(open.Orders, ids)
			fmt.Println("Dry run: the following orders would be canceled")
			printOrderTable(selected)
			if missing := len(ids) - len(selected); missing > 0 {
				fmt.Printf("%d order id(s) are not open\n", missing)
			}
			return nil
		}

		var canceled []types.Order
		var failed int
		for _, id := range ids {
			order, err := s.Grid.CancelOrder(ctx, id)
			if err != nil {
				failed++
				fmt.Printf("Order %d: %v\n", id, err)
				continue
			}
			canceled = append(canceled, *order)
		}

		if jsonOutput() {
			if err := printJSON(canceled); err != nil {
				return err
			}
		} else {
			printOrderTable(canceled)
			fmt.Printf("\nCanceled: %d, failed: %d\n", len(canceled), failed)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d cancels failed", failed, len(ids))
		}
		return nil
	})
}

// selectOrders returns the orders whose id is in ids, in the order of orders.
func selectOrders(orders []types.Order, ids []int64) []types.Order {
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []types.Order
	for _, o := range orders {
		if wanted[o.ID] {
			out = append(out, o)
		}
	}
	return out
}

func printOpenOrders(open *grid.OpenOrders) {
	if open.Total == 0 {
		fmt.Println("No open orders")
		return
	}

	if len(open.Pairs) > 0 {
		fmt.Printf("%-12s %-12s %-14s %-14s %-14s %-10s %-8s\n",
			"BUY ORDER", "SELL ORDER", "BUY PRICE", "SELL PRICE", "QUANTITY", "PROFIT", "PCT")
		for _, p := range open.Pairs {
			fmt.Printf("%-12d %-12d %-14.8g %-14.8g %-14.8g %-10.2f %-8.2f\n",
				p.Buy.ID, p.Sell.ID, p.Buy.Price, p.Sell.Price, p.Buy.Quantity, p.Profit, p.ProfitPercent)
		}
	}

	if len(open.Unpaired) > 0 {
		fmt.Println("\nUnpaired")
		printOrderTable(open.Unpaired)
	}

	var buys, sells int
	var locked float64
	for _, o := range open.Orders {
		if o.IsBuy() {
			buys++
		} else {
			sells++
		}
		locked += o.Price * (o.Quantity - o.ExecutedQty)
	}
	fmt.Printf("\nTotal: %d (BUY %d, SELL %d), %d paired, notional %.2f\n",
		open.Total, buys, sells, len(open.Pairs), locked)
}

func printOrderTable(orders []types.Order) {
	if len(orders) == 0 {
		fmt.Println("No orders")
		return
	}

	fmt.Printf("%-12s %-6s %-14s %-14s %-14s %-18s\n",
		"ORDER", "SIDE", "PRICE", "QUANTITY", "EXECUTED", "STATUS")
	for _, o := range orders {
		fmt.Printf("%-12d %-6s %-14.8g %-14.8g %-14.8g %-18s\n",
			o.ID, o.Side, o.Price, o.Quantity, o.ExecutedQty, o.Status)
	}
}
