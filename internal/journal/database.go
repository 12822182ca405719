package journal

import (
	"github.com/ksred/tradeflow-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateLog(entry *types.TradeLog) error {
	return d.db.Create(entry).Error
}

// ListLogs returns the most recent entries, optionally filtered by level.
func (d *Database) ListLogs(level string, limit int) ([]types.TradeLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := d.db.Order("created_at DESC").Limit(limit)
	if level != "" {
		query = query.Where("level = ?", level)
	}

	var logs []types.TradeLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
