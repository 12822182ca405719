package cmd

import (
	"fmt"
	"time"

	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the trading calendar status for the current instant",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	now := time.Now()
	fmt.Printf("Current time:       %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Printf("Trading day:        %v\n", a.scheduler.IsTradingDay(now))
	fmt.Printf("Trading time:       %v\n", a.scheduler.IsTradingTime(now))
	fmt.Printf("Morning session:    %s\n", a.scheduler.MorningSession())
	fmt.Printf("Afternoon session:  %s\n", a.scheduler.AfternoonSession())
	fmt.Printf("Signal fetch time:  %s\n", a.scheduler.FetchTime())
	fmt.Printf("Order execute time: %s\n", a.scheduler.ExecuteTime())

	if next, ok := a.scheduler.NextTradingInstant(now); ok {
		fmt.Printf("Next session open:  %s\n", next.Format("15:04"))
	}

	fmt.Printf("Risk control:       enabled=%v\n", a.risk.Enabled())
	fmt.Printf("Broker driver:      %s\n", a.broker.Name())

	pending, err := a.signals.CountPendingSignals()
	if err != nil {
		return err
	}
	active, err := a.executor.GetDB().CountActiveOrders()
	if err != nil {
		return err
	}
	fmt.Printf("Pending signals:    %d\n", pending)
	fmt.Printf("Active orders:      %d\n", active)

	counts, err := a.executor.GetDB().CountOrdersByStatus()
	if err != nil {
		return err
	}
	if len(counts) > 0 {
		fmt.Println("Orders today:")
		for _, status := range orderStatusOrder {
			if count, ok := counts[status]; ok {
				fmt.Printf("  %-16s %d\n", status, count)
			}
		}
	}

	// PENDING rows are orders that never reached the broker, usually a
	// crash between creation and submission. They need operator attention.
	unsubmitted, err := a.executor.GetDB().GetPendingOrders()
	if err != nil {
		return err
	}
	if len(unsubmitted) > 0 {
		fmt.Println("Unsubmitted orders:")
		for _, o := range unsubmitted {
			fmt.Printf("  %s  %s %s x%s\n", o.OrderID, o.Side, o.Symbol, o.Quantity.String())
		}
	}

	return nil
}

// orderStatusOrder fixes the print order for the per-status breakdown.
var orderStatusOrder = []types.OrderStatus{
	types.OrderStatusPending,
	types.OrderStatusSubmitted,
	types.OrderStatusPartialFilled,
	types.OrderStatusFilled,
	types.OrderStatusCancelled,
	types.OrderStatusRejected,
	types.OrderStatusFailed,
}
