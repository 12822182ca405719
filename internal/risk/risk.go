// Package risk gates order admission against configured portfolio limits
// and inspects open positions for stop-loss and take-profit alerts. All
// arithmetic is exact decimal; thresholds are converted once at
// construction.
package risk

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/ksred/tradeflow-api/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Rule identifiers reported in RiskCheckResult. They are part of the API
// contract; callers branch on them.
const (
	RuleDisabled            = "disabled"
	RuleAll                 = "all"
	RuleOrderAmount         = "order_amount"
	RulePositionLimit       = "position_limit"
	RuleHoldingsLimit       = "holdings_limit"
	RuleDailyLoss           = "daily_loss"
	RuleStopLoss            = "stop_loss"
	RuleTakeProfit          = "take_profit"
	RuleSinglePositionRatio = "single_position_ratio"
)

// Manager evaluates orders and positions against the configured policy.
// CheckOrder is the gating path; CheckAll is the non-gating inspection
// path used for reporting.
type Manager struct {
	enabled           bool
	maxOrderAmount    decimal.Decimal
	maxPositionRatio  decimal.Decimal
	maxDailyLossRatio decimal.Decimal
	stopLossRatio     decimal.Decimal
	takeProfitRatio   decimal.Decimal
	maxHoldings       int

	logger zerolog.Logger

	// initialAsset is the account's total asset captured at day start.
	// Zero disables the daily-loss rule.
	mu           sync.RWMutex
	initialAsset decimal.Decimal
}

// NewManager builds a risk manager from configuration.
func NewManager(cfg config.RiskConfig) *Manager {
	return &Manager{
		enabled:           cfg.Enabled,
		maxOrderAmount:    decimal.NewFromFloat(cfg.MaxOrderAmount),
		maxPositionRatio:  decimal.NewFromFloat(cfg.MaxPositionRatio),
		maxDailyLossRatio: decimal.NewFromFloat(cfg.MaxDailyLossRatio),
		stopLossRatio:     decimal.NewFromFloat(cfg.StopLossRatio),
		takeProfitRatio:   decimal.NewFromFloat(cfg.TakeProfitRatio),
		maxHoldings:       cfg.MaxHoldings,
		logger:            log.With().Str("service", "risk").Logger(),
	}
}

// Enabled reports whether the policy master switch is on.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// SetInitialAsset records the day-start asset baseline the daily-loss
// rule measures drawdown against.
func (m *Manager) SetInitialAsset(asset decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialAsset = asset
	m.logger.Info().Str("initial_asset", asset.String()).Msg("daily loss baseline set")
}

// InitialAsset returns the current day-start baseline.
func (m *Manager) InitialAsset() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialAsset
}

// CheckOrder runs the gating checks in fixed order and returns the first
// failure: order amount, then position exposure, then holdings count,
// then daily loss. A disabled policy passes everything.
func (m *Manager) CheckOrder(order *types.Order, account *types.Account, positions []types.Position) types.RiskCheckResult {
	if !m.enabled {
		return types.RiskCheckResult{Passed: true, Rule: RuleDisabled, Message: "risk control disabled"}
	}

	checks := []types.RiskCheckResult{
		m.checkOrderAmount(order),
		m.checkPositionLimit(order, account, positions),
		m.checkHoldingsLimit(order, positions),
		m.checkDailyLoss(account),
	}

	for _, result := range checks {
		if !result.Passed {
			m.logger.Warn().
				Str("rule", result.Rule).
				Str("symbol", order.Symbol).
				Msg(result.Message)
			return result
		}
	}

	return types.RiskCheckResult{Passed: true, Rule: RuleAll, Message: "all risk checks passed"}
}

// CheckAll is the inspection pass: the daily-loss check plus stop-loss,
// take-profit and single-position-ratio for every position. It never
// short-circuits; every result is returned.
func (m *Manager) CheckAll(account *types.Account, positions []types.Position) []types.RiskCheckResult {
	results := []types.RiskCheckResult{m.checkDailyLoss(account)}

	for i := range positions {
		p := &positions[i]
		results = append(results,
			m.checkStopLoss(p),
			m.checkTakeProfit(p),
			m.checkSinglePositionRatio(p, account),
		)
	}

	return results
}

// ValidateOrder runs CheckOrder and converts a failure into the typed
// error for the failing rule. nil means the order is admissible.
func (m *Manager) ValidateOrder(order *types.Order, account *types.Account, positions []types.Position) error {
	result := m.CheckOrder(order, account, positions)
	if result.Passed {
		return nil
	}
	return newControlError(result.Rule, result.Message)
}

// checkOrderAmount caps the notional of a single limit order. Market
// orders have no price to evaluate and always pass.
func (m *Manager) checkOrderAmount(order *types.Order) types.RiskCheckResult {
	if !order.Price.Valid {
		return types.RiskCheckResult{
			Passed:  true,
			Rule:    RuleOrderAmount,
			Message: "market order skips amount check",
		}
	}

	amount := order.Price.Decimal.Mul(order.Quantity)
	if amount.GreaterThan(m.maxOrderAmount) {
		return types.RiskCheckResult{
			Passed:  false,
			Rule:    RuleOrderAmount,
			Message: fmt.Sprintf("order amount %s exceeds limit %s", amount.StringFixed(2), m.maxOrderAmount.StringFixed(2)),
			Details: map[string]interface{}{
				"amount": amount.String(),
				"limit":  m.maxOrderAmount.String(),
			},
		}
	}

	return types.RiskCheckResult{Passed: true, Rule: RuleOrderAmount, Message: "order amount within limit"}
}

// checkPositionLimit caps the symbol's post-trade exposure as a share of
// total assets. Sells reduce exposure and always pass.
func (m *Manager) checkPositionLimit(order *types.Order, account *types.Account, positions []types.Position) types.RiskCheckResult {
	if order.Side == types.SignalTypeSell {
		return types.RiskCheckResult{
			Passed:  true,
			Rule:    RulePositionLimit,
			Message: "sell order skips position ratio check",
		}
	}

	currentValue := decimal.Zero
	for i := range positions {
		if positions[i].Symbol == order.Symbol {
			currentValue = positions[i].MarketValue()
			break
		}
	}

	orderValue := decimal.Zero
	if order.Price.Valid {
		orderValue = order.Price.Decimal.Mul(order.Quantity)
	}
	totalValue := currentValue.Add(orderValue)
	maxValue := account.TotalAsset.Mul(m.maxPositionRatio)

	if totalValue.GreaterThan(maxValue) {
		return types.RiskCheckResult{
			Passed: false,
			Rule:   RulePositionLimit,
			Message: fmt.Sprintf("position in %s would reach %s, over limit %s",
				order.Symbol, totalValue.StringFixed(2), maxValue.StringFixed(2)),
			Details: map[string]interface{}{
				"symbol":        order.Symbol,
				"current_value": currentValue.String(),
				"order_value":   orderValue.String(),
				"total_value":   totalValue.String(),
				"limit":         maxValue.String(),
			},
		}
	}

	return types.RiskCheckResult{Passed: true, Rule: RulePositionLimit, Message: "position ratio within limit"}
}

// checkHoldingsLimit caps the number of distinct symbols held. Only a buy
// opening a new symbol counts against the limit.
func (m *Manager) checkHoldingsLimit(order *types.Order, positions []types.Position) types.RiskCheckResult {
	if order.Side == types.SignalTypeSell {
		return types.RiskCheckResult{
			Passed:  true,
			Rule:    RuleHoldingsLimit,
			Message: "sell order skips holdings count check",
		}
	}

	held := make(map[string]bool)
	for i := range positions {
		if positions[i].Quantity.IsPositive() {
			held[positions[i].Symbol] = true
		}
	}

	if !held[order.Symbol] && len(held) >= m.maxHoldings {
		return types.RiskCheckResult{
			Passed:  false,
			Rule:    RuleHoldingsLimit,
			Message: fmt.Sprintf("holdings count already at limit %d", m.maxHoldings),
			Details: map[string]interface{}{
				"current_holdings": len(held),
				"limit":            m.maxHoldings,
			},
		}
	}

	return types.RiskCheckResult{Passed: true, Rule: RuleHoldingsLimit, Message: "holdings count within limit"}
}

// checkDailyLoss caps the drawdown against the day-start baseline. With
// no baseline set the rule is a no-op.
func (m *Manager) checkDailyLoss(account *types.Account) types.RiskCheckResult {
	initial := m.InitialAsset()
	if !initial.IsPositive() {
		return types.RiskCheckResult{
			Passed:  true,
			Rule:    RuleDailyLoss,
			Message: "no baseline set, daily loss check skipped",
		}
	}

	dailyLoss := initial.Sub(account.TotalAsset)
	lossRatio := dailyLoss.Div(initial)

	if lossRatio.GreaterThan(m.maxDailyLossRatio) {
		return types.RiskCheckResult{
			Passed: false,
			Rule:   RuleDailyLoss,
			Message: fmt.Sprintf("daily loss %s%% exceeds limit %s%%",
				lossRatio.Mul(decimal.NewFromInt(100)).StringFixed(2),
				m.maxDailyLossRatio.Mul(decimal.NewFromInt(100)).StringFixed(0)),
			Details: map[string]interface{}{
				"daily_loss": dailyLoss.String(),
				"loss_ratio": lossRatio.String(),
				"limit":      m.maxDailyLossRatio.String(),
			},
		}
	}

	return types.RiskCheckResult{Passed: true, Rule: RuleDailyLoss, Message: "daily loss within limit"}
}

// checkStopLoss flags a position whose loss ratio has reached the
// stop-loss threshold. Empty positions are skipped.
func (m *Manager) checkStopLoss(position *types.Position) types.RiskCheckResult {
	if !position.Quantity.IsPositive() {
		return types.RiskCheckResult{Passed: true, Rule: RuleStopLoss, Message: "no position, stop loss skipped"}
	}

	lossRatio := position.ProfitLossRatio().Neg()
	if lossRatio.GreaterThanOrEqual(m.stopLossRatio) {
		return types.RiskCheckResult{
			Passed: false,
			Rule:   RuleStopLoss,
			Message: fmt.Sprintf("%s down %s%%, stop loss line %s%% hit",
				position.Symbol,
				lossRatio.Mul(decimal.NewFromInt(100)).StringFixed(2),
				m.stopLossRatio.Mul(decimal.NewFromInt(100)).StringFixed(0)),
			Details: map[string]interface{}{
				"symbol":          position.Symbol,
				"loss_ratio":      lossRatio.String(),
				"stop_loss_ratio": m.stopLossRatio.String(),
			},
		}
	}

	return types.RiskCheckResult{Passed: true, Rule: RuleStopLoss, Message: position.Symbol + " above stop loss line"}
}

// checkTakeProfit flags a position whose gain ratio has reached the
// take-profit threshold.
func (m *Manager) checkTakeProfit(position *types.Position) types.RiskCheckResult {
	if !position.Quantity.IsPositive() {
		return types.RiskCheckResult{Passed: true, Rule: RuleTakeProfit, Message: "no position, take profit skipped"}
	}

	profitRatio := position.ProfitLossRatio()
	if profitRatio.GreaterThanOrEqual(m.takeProfitRatio) {
		return types.RiskCheckResult{
			Passed: false,
			Rule:   RuleTakeProfit,
			Message: fmt.Sprintf("%s up %s%%, take profit line %s%% hit",
				position.Symbol,
				profitRatio.Mul(decimal.NewFromInt(100)).StringFixed(2),
				m.takeProfitRatio.Mul(decimal.NewFromInt(100)).StringFixed(0)),
			Details: map[string]interface{}{
				"symbol":            position.Symbol,
				"profit_ratio":      profitRatio.String(),
				"take_profit_ratio": m.takeProfitRatio.String(),
			},
		}
	}

	return types.RiskCheckResult{Passed: true, Rule: RuleTakeProfit, Message: position.Symbol + " below take profit line"}
}

// checkSinglePositionRatio flags a position already over the per-symbol
// exposure cap. A zero-asset account is skipped.
func (m *Manager) checkSinglePositionRatio(position *types.Position, account *types.Account) types.RiskCheckResult {
	if !account.TotalAsset.IsPositive() {
		return types.RiskCheckResult{Passed: true, Rule: RuleSinglePositionRatio, Message: "zero total asset, check skipped"}
	}

	ratio := position.MarketValue().Div(account.TotalAsset)
	if ratio.GreaterThan(m.maxPositionRatio) {
		return types.RiskCheckResult{
			Passed: false,
			Rule:   RuleSinglePositionRatio,
			Message: fmt.Sprintf("%s position ratio %s%% over limit %s%%",
				position.Symbol,
				ratio.Mul(decimal.NewFromInt(100)).StringFixed(2),
				m.maxPositionRatio.Mul(decimal.NewFromInt(100)).StringFixed(0)),
			Details: map[string]interface{}{
				"symbol": position.Symbol,
				"ratio":  ratio.String(),
				"limit":  m.maxPositionRatio.String(),
			},
		}
	}

	return types.RiskCheckResult{Passed: true, Rule: RuleSinglePositionRatio, Message: position.Symbol + " position ratio normal"}
}

// GinHandlers contains HTTP handlers for risk inspection endpoints
type GinHandlers struct {
	manager *Manager
	broker  AccountSource
}

// AccountSource is the slice of the broker contract the inspection
// endpoint needs.
type AccountSource interface {
	GetAccount() (*types.Account, error)
	GetPositions() ([]types.Position, error)
}

// NewGinHandlers creates a new set of HTTP handlers for risk endpoints
func NewGinHandlers(manager *Manager, broker AccountSource) *GinHandlers {
	return &GinHandlers{
		manager: manager,
		broker:  broker,
	}
}

// CheckAllHandler handles GET requests running the non-gating inspection
// pass over the live account and positions.
func (h *GinHandlers) CheckAllHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := h.broker.GetAccount()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		positions, err := h.broker.GetPositions()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}

		results := h.manager.CheckAll(account, positions)
		response.Success(c, results)
	}
}
