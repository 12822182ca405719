package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Manage trading signals",
}

var signalFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch signals from the configured provider",
	Args:  cobra.NoArgs,
	RunE:  runSignalFetch,
}

var signalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored signals",
	Args:  cobra.NoArgs,
	RunE:  runSignalList,
}

var (
	signalSource      string
	signalPendingOnly bool
	signalLimit       int
)

func init() {
	rootCmd.AddCommand(signalCmd)
	signalCmd.AddCommand(signalFetchCmd)
	signalCmd.AddCommand(signalListCmd)

	signalListCmd.Flags().StringVar(&signalSource, "source", "", "filter by signal source")
	signalListCmd.Flags().BoolVar(&signalPendingOnly, "pending", false, "show only unexecuted signals")
	signalListCmd.Flags().IntVar(&signalLimit, "limit", 20, "maximum signals to list")
}

func runSignalFetch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	fetched, err := a.signals.FetchSignals()
	if err != nil {
		return err
	}

	fmt.Printf("Fetched %d signal(s)\n", len(fetched))
	for i := range fetched {
		s := &fetched[i]
		fmt.Printf("  %s  %-8s %-4s qty=%s\n", s.SignalID, s.Symbol, s.SignalType, s.TargetQuantity)
	}
	return nil
}

func runSignalList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	var executed *bool
	if signalPendingOnly {
		f := false
		executed = &f
	}

	list, err := a.signals.ListSignals(signalSource, executed, signalLimit)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No signals found")
		return nil
	}

	fmt.Printf("%-40s %-8s %-4s %12s %10s %-8s %s\n",
		"SIGNAL", "SYMBOL", "SIDE", "QUANTITY", "PRICE", "SOURCE", "EXECUTED")
	for i := range list {
		s := &list[i]
		price := "-"
		if s.TargetPrice.Valid {
			price = s.TargetPrice.Decimal.StringFixed(2)
		}
		fmt.Printf("%-40s %-8s %-4s %12s %10s %-8s %v\n",
			s.SignalID, s.Symbol, s.SignalType, s.TargetQuantity, price, s.Source, s.Executed)
	}
	return nil
}
