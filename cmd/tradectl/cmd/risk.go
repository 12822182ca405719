package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Risk policy inspection",
}

var riskCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the non-gating risk inspection over the live account",
	Args:  cobra.NoArgs,
	RunE:  runRiskCheck,
}

func init() {
	rootCmd.AddCommand(riskCmd)
	riskCmd.AddCommand(riskCheckCmd)
}

func runRiskCheck(cmd *cobra.Command, args []string) error {
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
	positions, err := a.broker.GetPositions()
	if err != nil {
		return err
	}

	results := a.risk.CheckAll(account, positions)

	failures := 0
	for _, r := range results {
		mark := "PASS"
		if !r.Passed {
			mark = "FAIL"
			failures++
		}
		fmt.Printf("[%s] %-22s %s\n", mark, r.Rule, r.Message)
	}

	fmt.Printf("\n%d check(s), %d alert(s)\n", len(results), failures)
	return nil
}
