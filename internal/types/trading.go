package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SignalType is the direction of a trading signal. Orders reuse it as
// their side.
type SignalType string

const (
	SignalTypeBuy  SignalType = "BUY"
	SignalTypeSell SignalType = "SELL"
)

// OrderType distinguishes priced orders from market orders. A signal with
// a target price produces a LIMIT order; one without produces a MARKET
// order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus is the lifecycle state of an order. FILLED, CANCELLED,
// REJECTED and FAILED are terminal: once reached the order never changes
// state again.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusSubmitted     OrderStatus = "SUBMITTED"
	OrderStatusPartialFilled OrderStatus = "PARTIAL_FILLED"
	OrderStatusFilled        OrderStatus = "FILLED"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
	OrderStatusRejected      OrderStatus = "REJECTED"
	OrderStatusFailed        OrderStatus = "FAILED"
)

var (
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrSignalExecuted    = errors.New("signal already executed")
)

// orderTransitions holds the allowed lifecycle moves. Terminal statuses
// deliberately have no entry.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {
		OrderStatusSubmitted,
		OrderStatusCancelled,
		OrderStatusRejected,
		OrderStatusFailed,
	},
	OrderStatusSubmitted: {
		OrderStatusPartialFilled,
		OrderStatusFilled,
		OrderStatusCancelled,
		OrderStatusRejected,
		OrderStatusFailed,
	},
	OrderStatusPartialFilled: {
		OrderStatusPartialFilled,
		OrderStatusFilled,
		OrderStatusCancelled,
		OrderStatusFailed,
	},
}

// Signal is a proposed trade pulled from a data provider. It is written
// once at intake and mutated exactly once more, when execution links the
// resulting order.
type Signal struct {
	gorm.Model     `json:"-"`
	SignalID       string              `gorm:"uniqueIndex" json:"signal_id"`
	Symbol         string              `gorm:"index" json:"symbol"`
	Name           string              `json:"name,omitempty"`
	SignalType     SignalType          `json:"signal_type"` // BUY or SELL
	TargetQuantity decimal.Decimal     `gorm:"type:decimal(20,8)" json:"target_quantity"`
	TargetPrice    decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"target_price"`
	TargetRatio    decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"target_ratio"`
	Source         string              `gorm:"index" json:"source"`
	StrategyName   string              `json:"strategy_name,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	Executed       bool                `gorm:"index" json:"executed"`
	OrderID        string              `json:"order_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	ExecutedAt     *time.Time          `json:"executed_at,omitempty"`
}

// Validate checks the invariants intake relies on.
func (s *Signal) Validate() error {
	if s.SignalID == "" {
		return errors.New("signal_id is required")
	}
	if s.Symbol == "" {
		return errors.New("symbol is required")
	}
	if s.SignalType != SignalTypeBuy && s.SignalType != SignalTypeSell {
		return fmt.Errorf("unknown signal type: %s", s.SignalType)
	}
	if s.TargetQuantity.IsNegative() {
		return errors.New("target_quantity must not be negative")
	}
	if s.TargetPrice.Valid && s.TargetPrice.Decimal.LessThanOrEqual(decimal.Zero) {
		return errors.New("target_price must be positive")
	}
	return nil
}

// MarkExecuted links the order created from this signal. Once executed
// the link is immutable.
func (s *Signal) MarkExecuted(orderID string) error {
	if s.Executed {
		return fmt.Errorf("%w: %s", ErrSignalExecuted, s.SignalID)
	}
	now := time.Now()
	s.Executed = true
	s.OrderID = orderID
	s.ExecutedAt = &now
	return nil
}

// Order is a unit of broker work, created from a signal or a direct
// request and driven through the status state machine by the executor.
type Order struct {
	gorm.Model     `json:"-"`
	OrderID        string              `gorm:"uniqueIndex" json:"order_id"`
	Symbol         string              `gorm:"index" json:"symbol"`
	Side           SignalType          `json:"side"`       // BUY or SELL
	OrderType      OrderType           `json:"order_type"` // LIMIT or MARKET
	Quantity       decimal.Decimal     `gorm:"type:decimal(20,8)" json:"quantity"`
	Price          decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"price"`
	Status         OrderStatus         `gorm:"index" json:"status"`
	FilledQuantity decimal.Decimal     `gorm:"type:decimal(20,8)" json:"filled_quantity"`
	FilledPrice    decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"filled_price"`
	BrokerOrderID  string              `gorm:"index" json:"broker_order_id,omitempty"`
	SignalID       string              `gorm:"index" json:"signal_id,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// IsCompleted reports whether the order has reached a terminal state.
func (o *Order) IsCompleted() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusFailed:
		return true
	}
	return false
}

// IsActive reports whether the order is live at the broker.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusSubmitted || o.Status == OrderStatusPartialFilled
}

// UnfilledQuantity is the open portion of the order.
func (o *Order) UnfilledQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// UpdateStatus moves the order to next if the lifecycle allows it.
// Moving to the current status is a no-op. Any move out of a terminal
// status is refused.
func (o *Order) UpdateStatus(next OrderStatus) error {
	if next == o.Status {
		return nil
	}
	if o.IsCompleted() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, o.Status)
	}
	for _, allowed := range orderTransitions[o.Status] {
		if next == allowed {
			o.Status = next
			o.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
}
