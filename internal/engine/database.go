package engine

import (
	"errors"

	"github.com/ksred/tradeflow-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// SaveSnapshot upserts the day's account snapshot by date.
func (d *Database) SaveSnapshot(snapshot *types.AccountSnapshot) error {
	var existing types.AccountSnapshot
	err := d.db.Where("date = ?", snapshot.Date).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d.db.Create(snapshot).Error
	}
	if err != nil {
		return err
	}

	snapshot.ID = existing.ID
	return d.db.Save(snapshot).Error
}

// GetSnapshot returns the snapshot for a YYYY-MM-DD date, or (nil, nil)
// if none was taken.
func (d *Database) GetSnapshot(date string) (*types.AccountSnapshot, error) {
	var snapshot types.AccountSnapshot
	if err := d.db.Where("date = ?", date).First(&snapshot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

// ListSnapshots returns the most recent daily snapshots.
func (d *Database) ListSnapshots(limit int) ([]types.AccountSnapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	var snapshots []types.AccountSnapshot
	err := d.db.Order("date DESC").Limit(limit).Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
