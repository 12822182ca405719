// Package executor owns the order state machine: it turns signals into
// orders, gates them through risk control, submits them to the broker and
// reconciles local state against the broker's authoritative view.
package executor

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/tradeflow-api/internal/broker"
	"github.com/ksred/tradeflow-api/internal/journal"
	"github.com/ksred/tradeflow-api/internal/risk"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/ksred/tradeflow-api/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service drives orders from creation to terminal state.
type Service struct {
	db      *Database
	broker  broker.Broker
	risk    *risk.Manager
	journal *journal.Service
	logger  zerolog.Logger
}

// NewService creates the order executor with its collaborators.
func NewService(gormDB *gorm.DB, b broker.Broker, r *risk.Manager, j *journal.Service) *Service {
	return &Service{
		db:      NewDatabase(gormDB),
		broker:  b,
		risk:    r,
		journal: j,
		logger:  log.With().Str("service", "executor").Logger(),
	}
}

// GetDB exposes the order store for collaborators that only need reads.
func (s *Service) GetDB() *Database {
	return s.db
}

// newOrderID mints a business order id.
func newOrderID() string {
	return "ORD_" + uuid.New().String()
}

// orderFromSignal builds a PENDING order mirroring the signal: a target
// price makes it a limit order, no price a market order.
func orderFromSignal(signal *types.Signal) *types.Order {
	orderType := types.OrderTypeMarket
	if signal.TargetPrice.Valid {
		orderType = types.OrderTypeLimit
	}

	return &types.Order{
		OrderID:   newOrderID(),
		Symbol:    signal.Symbol,
		Side:      signal.SignalType,
		OrderType: orderType,
		Quantity:  signal.TargetQuantity,
		Price:     signal.TargetPrice,
		Status:    types.OrderStatusPending,
		SignalID:  signal.SignalID,
	}
}

// ExecuteSignal converts a signal into an order and runs it through risk
// control and submission. A risk violation aborts before anything is
// persisted and the typed risk error propagates. A broker rejection does
// NOT: the order comes back REJECTED with a nil error, because the
// rejection is durable state, not a caller fault. Account and positions
// may be supplied by the caller; otherwise fresh snapshots are fetched.
func (s *Service) ExecuteSignal(signal *types.Signal, account *types.Account, positions []types.Position) (*types.Order, error) {
	s.logger.Info().
		Str("signal_id", signal.SignalID).
		Str("symbol", signal.Symbol).
		Str("side", string(signal.SignalType)).
		Str("quantity", signal.TargetQuantity.String()).
		Msg("executing signal")

	order := orderFromSignal(signal)

	if account == nil {
		var err error
		if account, err = s.broker.GetAccount(); err != nil {
			return nil, err
		}
	}
	if positions == nil {
		var err error
		if positions, err = s.broker.GetPositions(); err != nil {
			return nil, err
		}
	}

	if err := s.risk.ValidateOrder(order, account, positions); err != nil {
		return nil, err
	}

	// Persisted before submission so a crash in between leaves an
	// auditable PENDING row.
	if err := s.db.CreateOrder(order); err != nil {
		return nil, err
	}

	result := s.submit(order)

	if !result.Success {
		order.ErrorMessage = result.Message
		if err := order.UpdateStatus(types.OrderStatusRejected); err != nil {
			return nil, err
		}
		if err := s.db.SaveOrder(order); err != nil {
			return nil, err
		}
		s.journal.Error("order submission failed: "+order.Symbol+" - "+result.Message, map[string]interface{}{
			"order_id": order.OrderID,
		})
		return order, nil
	}

	order.BrokerOrderID = result.BrokerOrderID
	if err := order.UpdateStatus(types.OrderStatusSubmitted); err != nil {
		return nil, err
	}
	// The submitted state and broker id must be durable before the signal
	// is touched; the order is live at the venue from here on.
	if err := s.db.SaveOrder(order); err != nil {
		return nil, err
	}
	if err := signal.MarkExecuted(order.OrderID); err != nil {
		return order, err
	}
	s.journal.Info("order submitted: "+order.Symbol+" "+string(order.Side)+" "+order.Quantity.String(), map[string]interface{}{
		"order_id":        order.OrderID,
		"broker_order_id": result.BrokerOrderID,
	})
	return order, nil
}

// SubmitOrder is the direct-submission path for orders not derived from a
// signal. Unlike ExecuteSignal its contract is succeed-or-error: a broker
// rejection persists the REJECTED order and returns a SubmitError.
func (s *Service) SubmitOrder(order *types.Order) error {
	if order.OrderID == "" {
		order.OrderID = newOrderID()
	}
	if order.Status == "" {
		order.Status = types.OrderStatusPending
	}

	if err := s.db.SaveOrder(order); err != nil {
		return err
	}

	result := s.submit(order)

	if !result.Success {
		order.ErrorMessage = result.Message
		if err := order.UpdateStatus(types.OrderStatusRejected); err != nil {
			return err
		}
		if err := s.db.SaveOrder(order); err != nil {
			return err
		}
		return &SubmitError{Reason: result.Message}
	}

	order.BrokerOrderID = result.BrokerOrderID
	if err := order.UpdateStatus(types.OrderStatusSubmitted); err != nil {
		return err
	}
	return s.db.SaveOrder(order)
}

// submit calls the broker, folding a raised error into an ordinary
// rejection: the two are treated identically downstream.
func (s *Service) submit(order *types.Order) *broker.SubmitResult {
	result, err := s.broker.SubmitOrder(order)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", order.OrderID).Msg("broker submission error")
		return &broker.SubmitResult{Success: false, Message: err.Error()}
	}
	return result
}

// CancelOrder attempts to cancel the order. False means "did not cancel":
// unknown id, already terminal, or the broker refused. An order that
// never reached the broker is cancelled locally without a broker call.
// Broker failures are journalled, never raised.
func (s *Service) CancelOrder(orderID string) bool {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("order lookup failed")
		return false
	}
	if order == nil {
		s.logger.Warn().Str("order_id", orderID).Msg("cancel of unknown order")
		return false
	}
	if order.IsCompleted() {
		s.logger.Warn().
			Str("order_id", orderID).
			Str("status", string(order.Status)).
			Msg("cancel of completed order")
		return false
	}

	if order.BrokerOrderID == "" {
		if err := order.UpdateStatus(types.OrderStatusCancelled); err != nil {
			return false
		}
		if err := s.db.SaveOrder(order); err != nil {
			s.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to persist local cancel")
			return false
		}
		return true
	}

	cancelled, err := s.broker.CancelOrder(order.BrokerOrderID)
	if err != nil {
		s.journal.Warning("order cancel failed: "+order.Symbol+" - "+err.Error(), map[string]interface{}{
			"order_id": order.OrderID,
		})
		return false
	}
	if !cancelled {
		return false
	}

	if err := order.UpdateStatus(types.OrderStatusCancelled); err != nil {
		return false
	}
	if err := s.db.SaveOrder(order); err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to persist cancel")
		return false
	}

	s.journal.Info("order cancelled: "+order.Symbol, map[string]interface{}{
		"order_id": order.OrderID,
	})
	return true
}

// SyncOrderStatus refreshes one order from the broker's view. Broker
// query failures are swallowed: the last-known local order is returned
// unchanged with a journal entry as the only trace. An unknown id is
// (nil, nil).
func (s *Service) SyncOrderStatus(orderID string) (*types.Order, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, nil
	}

	s.refresh(order)
	return order, nil
}

// refresh overwrites the order with the broker snapshot, reporting
// whether the broker view was actually applied.
func (s *Service) refresh(order *types.Order) bool {
	if order.BrokerOrderID == "" {
		return false
	}

	snapshot, err := s.broker.QueryOrder(order.BrokerOrderID)
	if err != nil {
		s.journal.Warning("order sync failed: "+order.Symbol+" - "+err.Error(), map[string]interface{}{
			"order_id": order.OrderID,
		})
		return false
	}
	if snapshot == nil {
		return false
	}

	if snapshot.Status != order.Status {
		if err := order.UpdateStatus(snapshot.Status); err != nil {
			s.logger.Warn().
				Err(err).
				Str("order_id", order.OrderID).
				Msg("broker reported a disallowed transition, keeping local state")
			return false
		}
	}
	order.FilledQuantity = snapshot.FilledQuantity
	order.FilledPrice = snapshot.FilledPrice
	order.UpdatedAt = time.Now()

	if err := s.db.SaveOrder(order); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to persist sync")
		return false
	}
	return true
}

// SyncAllActiveOrders reconciles every SUBMITTED or PARTIAL_FILLED order,
// one at a time, and returns those actually refreshed from the broker.
// Per-order failures never abort the batch.
func (s *Service) SyncAllActiveOrders() []types.Order {
	active, err := s.db.GetActiveOrders()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load active orders")
		return nil
	}

	var refreshed []types.Order
	for i := range active {
		if s.refresh(&active[i]) {
			refreshed = append(refreshed, active[i])
		}
	}

	s.logger.Info().
		Int("active", len(active)).
		Int("refreshed", len(refreshed)).
		Msg("active orders synced")
	return refreshed
}

// GetOrder retrieves an order by its business id.
func (s *Service) GetOrder(orderID string) (*types.Order, error) {
	return s.db.GetOrder(orderID)
}

// ListOrders returns the most recent orders with optional filters.
func (s *Service) ListOrders(symbol string, status types.OrderStatus, limit int) ([]types.Order, error) {
	return s.db.ListOrders(symbol, status, limit)
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListOrdersHandler handles GET requests for the order book.
// Query parameters: symbol, status, limit
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := queryInt(c, "limit", 100)
		orders, err := h.service.ListOrders(c.Query("symbol"), types.OrderStatus(c.Query("status")), limit)
		response.Handle(c, orders, err)
	}
}

// GetOrderHandler handles GET requests for a single order.
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.GetOrder(c.Param("order_id"))
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if order == nil {
			response.NotFound(c, "Order not found")
			return
		}
		response.Success(c, order)
	}
}

// SubmitOrderHandler handles POST requests submitting an order directly,
// bypassing the signal path. The succeed-or-error contract applies.
func (h *GinHandlers) SubmitOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var order types.Order
		if err := c.ShouldBindJSON(&order); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if order.Symbol == "" || !order.Quantity.IsPositive() {
			response.BadRequest(c, "symbol and a positive quantity are required")
			return
		}
		if order.Side != types.SignalTypeBuy && order.Side != types.SignalTypeSell {
			response.BadRequest(c, "side must be BUY or SELL")
			return
		}
		if order.OrderType == "" {
			order.OrderType = types.OrderTypeMarket
			if order.Price.Valid {
				order.OrderType = types.OrderTypeLimit
			}
		}

		response.Handle(c, &order, h.service.SubmitOrder(&order))
	}
}

// CancelOrderHandler handles DELETE requests to cancel an order.
// URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cancelled := h.service.CancelOrder(c.Param("order_id"))
		response.Success(c, gin.H{"cancelled": cancelled})
	}
}

// SyncOrderHandler handles POST requests to refresh one order from the
// broker. URL parameter: order_id
func (h *GinHandlers) SyncOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.SyncOrderStatus(c.Param("order_id"))
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if order == nil {
			response.NotFound(c, "Order not found")
			return
		}
		response.Success(c, order)
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
