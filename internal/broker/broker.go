// Package broker defines the narrow contract the engine consumes from a
// trading venue and the adapters that implement it. Adapters are
// swappable at construction time; the engine never depends on a concrete
// one.
package broker

import (
	"errors"
	"fmt"

	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/shopspring/decimal"
)

var (
	ErrNotConnected  = errors.New("broker not connected")
	ErrUnknownDriver = errors.New("unknown broker driver")
)

// SubmitResult is the broker's answer to an order submission. Ordinary
// rejections come back as Success=false with a message rather than as an
// error; callers treat a returned error the same way.
type SubmitResult struct {
	Success       bool   `json:"success"`
	BrokerOrderID string `json:"broker_order_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

// OrderSnapshot is the broker's authoritative view of a previously
// submitted order, consumed by reconciliation.
type OrderSnapshot struct {
	BrokerOrderID  string              `json:"broker_order_id"`
	Status         types.OrderStatus   `json:"status"`
	FilledQuantity decimal.Decimal     `json:"filled_quantity"`
	FilledPrice    decimal.NullDecimal `json:"filled_price"`
}

// Broker is the capability set the engine requires from a trading venue.
type Broker interface {
	Name() string
	IsConnected() bool
	IsSimulation() bool
	Connect() error
	Disconnect() error

	// SubmitOrder places the order. A nil error with Success=false is an
	// ordinary rejection.
	SubmitOrder(order *types.Order) (*SubmitResult, error)

	// CancelOrder cancels by broker-assigned id. False means the order
	// could not be cancelled (unknown or already done).
	CancelOrder(brokerOrderID string) (bool, error)

	// QueryOrder returns the broker's view of the order, or nil if the
	// broker no longer knows the id.
	QueryOrder(brokerOrderID string) (*OrderSnapshot, error)

	GetPositions() ([]types.Position, error)
	GetAccount() (*types.Account, error)
}

// New builds the broker adapter selected by cfg.Driver.
func New(cfg config.BrokerConfig) (Broker, error) {
	switch cfg.Driver {
	case "sim":
		return NewSim(cfg.Sim), nil
	case "bridge":
		return NewBridge(cfg.Bridge), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
