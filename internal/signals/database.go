package signals

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

// SaveSignal upserts by business signal id.
func (d *Database) SaveSignal(signal *types.Signal) error {
	var existing types.Signal
	err := d.db.Where("signal_id = ?", signal.SignalID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d.db.Create(signal).Error
	}
	if err != nil {
		return err
	}

	signal.ID = existing.ID
	return d.db.Save(signal).Error
}

// SaveBatch upserts the batch, one row per signal id: unknown ids are
// inserted, known unexecuted ids updated in place, known executed ids
// left untouched so the executed-order link stays immutable. Returns the
// number of rows written.
func (d *Database) SaveBatch(batch []types.Signal) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return 0, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	saved := 0
	for i := range batch {
		signal := &batch[i]

		var existing types.Signal
		err := tx.Where("signal_id = ?", signal.SignalID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(signal).Error; err != nil {
				tx.Rollback()
				return 0, err
			}
			saved++
		case err != nil:
			tx.Rollback()
			return 0, err
		case existing.Executed:
			// Executed signals are immutable.
			batch[i] = existing
		default:
			signal.ID = existing.ID
			if err := tx.Save(signal).Error; err != nil {
				tx.Rollback()
				return 0, err
			}
			saved++
		}
	}

	return saved, tx.Commit().Error
}

// GetSignal returns the signal by business id, or (nil, nil) if unknown.
func (d *Database) GetSignal(signalID string) (*types.Signal, error) {
	var signal types.Signal
	if err := d.db.Where("signal_id = ?", signalID).First(&signal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &signal, nil
}

// GetPendingSignals returns signals not yet executed, most recent first.
func (d *Database) GetPendingSignals() ([]types.Signal, error) {
	var pending []types.Signal
	err := d.db.
		Where("executed = ?", false).
		Order("created_at DESC").
		Find(&pending).Error
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// CountPendingSignals returns the size of the pending backlog.
func (d *Database) CountPendingSignals() (int64, error) {
	var count int64
	err := d.db.Model(&types.Signal{}).Where("executed = ?", false).Count(&count).Error
	return count, err
}

// ListSignals returns the most recent signals with optional filters.
func (d *Database) ListSignals(source string, executed *bool, limit int) ([]types.Signal, error) {
	if limit <= 0 {
		limit = 100
	}

	query := d.db.Order("created_at DESC").Limit(limit)
	if source != "" {
		query = query.Where("source = ?", source)
	}
	if executed != nil {
		query = query.Where("executed = ?", *executed)
	}

	var list []types.Signal
	if err := query.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
