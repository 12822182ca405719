package cmd

import (
	"fmt"

	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/database"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Local database maintenance",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database file and run all migrations",
	Args:  cobra.NoArgs,
	RunE:  runDBInit,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInitCmd)
}

func runDBInit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if _, err := database.NewDatabase(cfg.Database.Path); err != nil {
		return err
	}

	fmt.Printf("Database initialised at %s\n", cfg.Database.Path)
	return nil
}
