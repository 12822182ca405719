package executor

import (
	"errors"
	"fmt"

	"github.com/ksred/tradeflow-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

// SaveOrder upserts by business order id. A row that has reached a
// terminal status is never moved to a different status again, even by a
// stale writer.
func (d *Database) SaveOrder(order *types.Order) error {
	var existing types.Order
	err := d.db.Where("order_id = ?", order.OrderID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d.db.Create(order).Error
	}
	if err != nil {
		return err
	}

	if existing.IsCompleted() && order.Status != existing.Status {
		return fmt.Errorf("%w: stored order %s is %s",
			types.ErrInvalidTransition, order.OrderID, existing.Status)
	}

	order.ID = existing.ID
	return d.db.Save(order).Error
}

// GetOrder returns the order by business id, or (nil, nil) if unknown.
func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetActiveOrders returns orders still live at the broker, most recent
// first. This is the reconciliation working set.
func (d *Database) GetActiveOrders() ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("status IN ?", []types.OrderStatus{types.OrderStatusSubmitted, types.OrderStatusPartialFilled}).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// GetPendingOrders returns orders created but never submitted.
func (d *Database) GetPendingOrders() ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("status = ?", types.OrderStatusPending).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOrders returns the most recent orders, optionally filtered by
// symbol and status.
func (d *Database) ListOrders(symbol string, status types.OrderStatus, limit int) ([]types.Order, error) {
	if limit <= 0 {
		limit = 100
	}

	query := d.db.Order("created_at DESC").Limit(limit)
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var orders []types.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// CountActiveOrders returns the size of the reconciliation working set.
func (d *Database) CountActiveOrders() (int64, error) {
	var count int64
	err := d.db.Model(&types.Order{}).
		Where("status IN ?", []types.OrderStatus{types.OrderStatusSubmitted, types.OrderStatusPartialFilled}).
		Count(&count).Error
	return count, err
}

// CountOrdersByStatus aggregates today's orders per status for the daily
// stats surface.
func (d *Database) CountOrdersByStatus() (map[types.OrderStatus]int64, error) {
	rows, err := d.db.Raw(`
		SELECT status, COUNT(*) AS count
		FROM orders
		WHERE DATE(created_at) = DATE('now', 'localtime')
		GROUP BY status
	`).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[types.OrderStatus]int64)
	for rows.Next() {
		var status types.OrderStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
