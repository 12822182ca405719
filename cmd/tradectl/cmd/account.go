package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the broker account snapshot",
	Args:  cobra.NoArgs,
	RunE:  runAccount,
}

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Show the broker position book",
	Args:  cobra.NoArgs,
	RunE:  runPositions,
}

func init() {
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(positionsCmd)
}

func runAccount(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}

	account, err := a.broker.GetAccount()
	if err != nil {
		return err
	}

	fmt.Printf("Account:        %s\n", account.AccountID)
	fmt.Printf("Total asset:    %s\n", account.TotalAsset.StringFixed(2))
	fmt.Printf("Cash:           %s\n", account.Cash.StringFixed(2))
	fmt.Printf("Available cash: %s\n", account.AvailableCash().StringFixed(2))
	fmt.Printf("Market value:   %s\n", account.MarketValue.StringFixed(2))
	fmt.Printf("Position ratio: %s%%\n", account.PositionRatio().Shift(2).StringFixed(2))
	return nil
}

func runPositions(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}

	positions, err := a.broker.GetPositions()
	if err != nil {
		return err
	}

	if len(positions) == 0 {
		fmt.Println("No positions held")
		return nil
	}

	fmt.Printf("%-8s %12s %12s %10s %10s %12s %9s\n",
		"SYMBOL", "QUANTITY", "AVAILABLE", "COST", "PRICE", "VALUE", "P/L%")
	for i := range positions {
		p := &positions[i]
		fmt.Printf("%-8s %12s %12s %10s %10s %12s %8s%%\n",
			p.Symbol, p.Quantity, p.AvailableQuantity,
			p.AvgCost.StringFixed(2), p.CurrentPrice.StringFixed(2),
			p.MarketValue().StringFixed(2),
			p.ProfitLossRatio().Shift(2).StringFixed(2))
	}
	return nil
}
