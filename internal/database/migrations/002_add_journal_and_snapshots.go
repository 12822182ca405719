package migrations

import (
	"github.com/ksred/tradeflow-api/internal/types"
	"gorm.io/gorm"
)

// AddJournalAndSnapshots creates the trade log and daily account snapshot
// tables and their query indexes.
func AddJournalAndSnapshots(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.TradeLog{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&types.AccountSnapshot{}); err != nil {
		return err
	}

	indexes := []string{
		// Composite index for level filtering over time ranges
		`CREATE INDEX IF NOT EXISTS idx_trade_logs_level_created_at
		 ON trade_logs(level, created_at)`,

		// Index for created_at timestamp (useful for time-based queries)
		`CREATE INDEX IF NOT EXISTS idx_trade_logs_created_at
		 ON trade_logs(created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
