package cmd

import (
	"fmt"

	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/spf13/cobra"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Manage orders",
}

var orderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent orders",
	Args:  cobra.NoArgs,
	RunE:  runOrderList,
}

var orderGetCmd = &cobra.Command{
	Use:   "get <order-id>",
	Short: "Show one order",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrderGet,
}

var orderCancelCmd = &cobra.Command{
	Use:   "cancel <order-id>",
	Short: "Cancel an order",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrderCancel,
}

var orderSyncCmd = &cobra.Command{
	Use:   "sync [order-id]",
	Short: "Reconcile orders against the broker (all active orders when no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOrderSync,
}

var (
	orderSymbol string
	orderStatus string
	orderLimit  int
)

func init() {
	rootCmd.AddCommand(orderCmd)
	orderCmd.AddCommand(orderListCmd)
	orderCmd.AddCommand(orderGetCmd)
	orderCmd.AddCommand(orderCancelCmd)
	orderCmd.AddCommand(orderSyncCmd)

	orderListCmd.Flags().StringVar(&orderSymbol, "symbol", "", "filter by symbol")
	orderListCmd.Flags().StringVar(&orderStatus, "status", "", "filter by status")
	orderListCmd.Flags().IntVar(&orderLimit, "limit", 20, "maximum orders to list")
}

func runOrderList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	orders, err := a.executor.ListOrders(orderSymbol, types.OrderStatus(orderStatus), orderLimit)
	if err != nil {
		return err
	}

	if len(orders) == 0 {
		fmt.Println("No orders found")
		return nil
	}

	fmt.Printf("%-40s %-8s %-4s %-14s %12s %12s\n",
		"ORDER", "SYMBOL", "SIDE", "STATUS", "QUANTITY", "FILLED")
	for i := range orders {
		o := &orders[i]
		fmt.Printf("%-40s %-8s %-4s %-14s %12s %12s\n",
			o.OrderID, o.Symbol, o.Side, o.Status, o.Quantity, o.FilledQuantity)
	}
	return nil
}

func runOrderGet(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	order, err := a.executor.GetOrder(args[0])
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("order not found: %s", args[0])
	}

	printOrder(order)
	return nil
}

func runOrderCancel(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}

	if a.executor.CancelOrder(args[0]) {
		fmt.Println("Order cancelled")
	} else {
		fmt.Println("Order not cancelled (unknown, already completed, or refused by broker)")
	}
	return nil
}

func runOrderSync(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}

	if len(args) == 1 {
		order, err := a.executor.SyncOrderStatus(args[0])
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("order not found: %s", args[0])
		}
		printOrder(order)
		return nil
	}

	refreshed := a.executor.SyncAllActiveOrders()
	fmt.Printf("Refreshed %d active order(s)\n", len(refreshed))
	return nil
}

func printOrder(o *types.Order) {
	fmt.Printf("Order:          %s\n", o.OrderID)
	fmt.Printf("Symbol:         %s\n", o.Symbol)
	fmt.Printf("Side:           %s\n", o.Side)
	fmt.Printf("Type:           %s\n", o.OrderType)
	fmt.Printf("Status:         %s\n", o.Status)
	fmt.Printf("Quantity:       %s\n", o.Quantity)
	if o.Price.Valid {
		fmt.Printf("Price:          %s\n", o.Price.Decimal.StringFixed(2))
	}
	fmt.Printf("Filled:         %s\n", o.FilledQuantity)
	if o.FilledPrice.Valid {
		fmt.Printf("Filled price:   %s\n", o.FilledPrice.Decimal.StringFixed(4))
	}
	if o.BrokerOrderID != "" {
		fmt.Printf("Broker id:      %s\n", o.BrokerOrderID)
	}
	if o.SignalID != "" {
		fmt.Printf("Signal id:      %s\n", o.SignalID)
	}
	if o.ErrorMessage != "" {
		fmt.Printf("Error:          %s\n", o.ErrorMessage)
	}
	fmt.Printf("Created:        %s\n", o.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:        %s\n", o.UpdatedAt.Format("2006-01-02 15:04:05"))
}
