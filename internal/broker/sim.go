package broker

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// defaultReferencePrice is the starting quote for symbols the sim has
// never traded.
var defaultReferencePrice = decimal.NewFromInt(10)

type simOrder struct {
	symbol    string
	side      types.SignalType
	orderType types.OrderType
	quantity  decimal.Decimal
	price     decimal.NullDecimal

	status      types.OrderStatus
	filledQty   decimal.Decimal
	filledPrice decimal.NullDecimal
}

// Sim is an in-memory broker. Orders are accepted with a configurable
// success rate and fill progressively as they are queried, mutating a
// simulated cash balance and position book.
type Sim struct {
	cfg    config.SimBrokerConfig
	logger zerolog.Logger

	mu        sync.Mutex
	connected bool
	cash      decimal.Decimal
	positions map[string]*types.Position
	orders    map[string]*simOrder
	lastPrice map[string]decimal.Decimal
}

// NewSim builds a simulated broker seeded with the configured cash
// balance and an empty position book.
func NewSim(cfg config.SimBrokerConfig) *Sim {
	return &Sim{
		cfg:       cfg,
		logger:    log.With().Str("service", "sim_broker").Logger(),
		cash:      decimal.NewFromFloat(cfg.InitialCash),
		positions: make(map[string]*types.Position),
		orders:    make(map[string]*simOrder),
		lastPrice: make(map[string]decimal.Decimal),
	}
}

func (s *Sim) Name() string       { return "sim" }
func (s *Sim) IsSimulation() bool { return true }

func (s *Sim) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Sim) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.logger.Info().Msg("simulated broker connected")
	return nil
}

func (s *Sim) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.logger.Info().Msg("simulated broker disconnected")
	return nil
}

// SubmitOrder accepts or rejects the order after a simulated network
// delay. Accepted orders start in SUBMITTED and fill on later queries.
func (s *Sim) SubmitOrder(order *types.Order) (*SubmitResult, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}

	s.simulateLatency()

	s.mu.Lock()
	defer s.mu.Unlock()

	if rand.Float64() > s.cfg.SuccessRate {
		s.logger.Warn().
			Str("symbol", order.Symbol).
			Float64("success_rate", s.cfg.SuccessRate).
			Msg("order rejected by success rate threshold")
		return &SubmitResult{Success: false, Message: "order rejected by venue"}, nil
	}

	if order.Side == types.SignalTypeSell {
		held := decimal.Zero
		if p, ok := s.positions[order.Symbol]; ok {
			held = p.AvailableQuantity
		}
		if order.Quantity.GreaterThan(held) {
			return &SubmitResult{
				Success: false,
				Message: fmt.Sprintf("insufficient position: have %s, want %s", held, order.Quantity),
			}, nil
		}
	}

	u := uuid.New()
	brokerOrderID := fmt.Sprintf("SIM_%X", u[:4])

	s.orders[brokerOrderID] = &simOrder{
		symbol:    order.Symbol,
		side:      order.Side,
		orderType: order.OrderType,
		quantity:  order.Quantity,
		price:     order.Price,
		status:    types.OrderStatusSubmitted,
	}

	s.logger.Info().
		Str("broker_order_id", brokerOrderID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("quantity", order.Quantity.String()).
		Msg("simulated order accepted")

	return &SubmitResult{Success: true, BrokerOrderID: brokerOrderID, Message: "accepted"}, nil
}

// CancelOrder cancels an open simulated order. Unknown or already-done
// orders report false.
func (s *Sim) CancelOrder(brokerOrderID string) (bool, error) {
	if !s.IsConnected() {
		return false, ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[brokerOrderID]
	if !ok {
		return false, nil
	}
	if o.status != types.OrderStatusSubmitted && o.status != types.OrderStatusPartialFilled {
		return false, nil
	}

	o.status = types.OrderStatusCancelled
	s.logger.Info().Str("broker_order_id", brokerOrderID).Msg("simulated order cancelled")
	return true, nil
}

// QueryOrder advances the order's fill simulation and returns the
// broker-side view, or nil if the id is unknown.
func (s *Sim) QueryOrder(brokerOrderID string) (*OrderSnapshot, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[brokerOrderID]
	if !ok {
		return nil, nil
	}

	s.advanceFill(brokerOrderID, o)

	return &OrderSnapshot{
		BrokerOrderID:  brokerOrderID,
		Status:         o.status,
		FilledQuantity: o.filledQty,
		FilledPrice:    o.filledPrice,
	}, nil
}

// advanceFill moves an open order one step along its fill path: either a
// partial fill of half the quantity or completion of the remainder.
func (s *Sim) advanceFill(brokerOrderID string, o *simOrder) {
	if o.status != types.OrderStatusSubmitted && o.status != types.OrderStatusPartialFilled {
		return
	}

	price := s.fillPrice(o)
	remaining := o.quantity.Sub(o.filledQty)

	fillQty := remaining
	if o.status == types.OrderStatusSubmitted && rand.Float64() < s.cfg.PartialFillRate {
		half := remaining.Div(decimal.NewFromInt(2)).Floor()
		if half.IsPositive() {
			fillQty = half
		}
	}

	s.applyFill(o, fillQty, price)

	if o.filledQty.GreaterThanOrEqual(o.quantity) {
		o.status = types.OrderStatusFilled
	} else {
		o.status = types.OrderStatusPartialFilled
	}

	s.logger.Debug().
		Str("broker_order_id", brokerOrderID).
		Str("fill_quantity", fillQty.String()).
		Str("fill_price", price.String()).
		Str("status", string(o.status)).
		Msg("simulated fill applied")
}

// fillPrice picks the execution price: limit orders fill at their limit,
// market orders at the last quote with a small random slip.
func (s *Sim) fillPrice(o *simOrder) decimal.Decimal {
	if o.price.Valid {
		return o.price.Decimal
	}
	ref, ok := s.lastPrice[o.symbol]
	if !ok {
		ref = defaultReferencePrice
	}
	slip := decimal.NewFromFloat(1 + (rand.Float64()*0.04 - 0.02))
	return ref.Mul(slip).Round(4)
}

func (s *Sim) applyFill(o *simOrder, qty, price decimal.Decimal) {
	// Weighted average across successive fills.
	notional := qty.Mul(price)
	if o.filledPrice.Valid {
		prev := o.filledPrice.Decimal.Mul(o.filledQty)
		total := o.filledQty.Add(qty)
		o.filledPrice = decimal.NewNullDecimal(prev.Add(notional).Div(total).Round(4))
	} else {
		o.filledPrice = decimal.NewNullDecimal(price)
	}
	o.filledQty = o.filledQty.Add(qty)

	s.lastPrice[o.symbol] = price

	p, ok := s.positions[o.symbol]
	if o.side == types.SignalTypeBuy {
		s.cash = s.cash.Sub(notional)
		if !ok {
			p = &types.Position{Symbol: o.symbol}
			s.positions[o.symbol] = p
		}
		newQty := p.Quantity.Add(qty)
		p.AvgCost = p.AvgCost.Mul(p.Quantity).Add(notional).Div(newQty).Round(4)
		p.Quantity = newQty
		p.AvailableQuantity = newQty
	} else {
		s.cash = s.cash.Add(notional)
		if ok {
			p.Quantity = p.Quantity.Sub(qty)
			p.AvailableQuantity = p.Quantity
			if !p.Quantity.IsPositive() {
				delete(s.positions, o.symbol)
			}
		}
	}

	if p, ok := s.positions[o.symbol]; ok {
		p.CurrentPrice = price
		p.UpdatedAt = time.Now()
	}
}

// GetPositions returns held positions ordered by symbol.
func (s *Sim) GetPositions() ([]types.Position, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// GetAccount recomputes the account snapshot from cash and the current
// position book.
func (s *Sim) GetAccount() (*types.Account, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	marketValue := decimal.Zero
	for _, p := range s.positions {
		marketValue = marketValue.Add(p.MarketValue())
	}

	return &types.Account{
		AccountID:   "SIM_ACCOUNT",
		AccountType: "stock",
		TotalAsset:  s.cash.Add(marketValue),
		Cash:        s.cash,
		MarketValue: marketValue,
		UpdatedAt:   time.Now(),
	}, nil
}

func (s *Sim) simulateLatency() {
	if s.cfg.MaxLatencyMs <= 0 {
		return
	}
	span := s.cfg.MaxLatencyMs - s.cfg.MinLatencyMs + 1
	if span < 1 {
		span = 1
	}
	latency := rand.Intn(span) + s.cfg.MinLatencyMs
	time.Sleep(time.Duration(latency) * time.Millisecond)
}
