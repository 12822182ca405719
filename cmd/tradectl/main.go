package main

import (
	"os"

	"github.com/ksred/tradeflow-api/cmd/tradectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
