package migrations

import (
	"github.com/ksred/tradeflow-api/internal/types"
	"gorm.io/gorm"
)

// CreateTradingTables creates the signal and order tables with the
// indexes the engine's hot queries rely on.
func CreateTradingTables(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Signal{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&types.Order{}); err != nil {
		return err
	}

	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Composite index for the active-order scan
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created_at
		 ON orders(status, created_at)`,

		// Composite index for symbol and status (common query pattern)
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol_status
		 ON orders(symbol, status)`,

		// Index for the pending-signal scan at execute time
		`CREATE INDEX IF NOT EXISTS idx_signals_executed_created_at
		 ON signals(executed, created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
