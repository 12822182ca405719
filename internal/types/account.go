package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ratioPlaces is the precision derived ratios are reported at.
const ratioPlaces = 4

// Position is a current holding. The broker snapshot owns it; risk checks
// treat it as a read-only input, never persisted by the engine.
type Position struct {
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name,omitempty"`
	Quantity          decimal.Decimal `json:"quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	FrozenQuantity    decimal.Decimal `json:"frozen_quantity"`
	AvgCost           decimal.Decimal `json:"avg_cost"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// MarketValue is the position's worth at the current price.
func (p *Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice)
}

// CostValue is what the position cost to build.
func (p *Position) CostValue() decimal.Decimal {
	return p.Quantity.Mul(p.AvgCost)
}

// ProfitLoss is the unrealised gain or loss against cost.
func (p *Position) ProfitLoss() decimal.Decimal {
	return p.MarketValue().Sub(p.CostValue())
}

// ProfitLossRatio is the gain or loss relative to cost, rounded to four
// decimal places. Zero when the cost value is zero.
func (p *Position) ProfitLossRatio() decimal.Decimal {
	cost := p.CostValue()
	if cost.IsZero() {
		return decimal.Zero
	}
	return p.ProfitLoss().Div(cost).Round(ratioPlaces)
}

// Account is the broker-reported account snapshot for one evaluation
// cycle.
type Account struct {
	AccountID       string          `json:"account_id"`
	AccountType     string          `json:"account_type,omitempty"`
	TotalAsset      decimal.Decimal `json:"total_asset"`
	Cash            decimal.Decimal `json:"cash"`
	FrozenCash      decimal.Decimal `json:"frozen_cash"`
	MarketValue     decimal.Decimal `json:"market_value"`
	TotalProfitLoss decimal.Decimal `json:"total_profit_loss"`
	TodayProfitLoss decimal.Decimal `json:"today_profit_loss"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// AvailableCash is the cash actually spendable right now.
func (a *Account) AvailableCash() decimal.Decimal {
	return a.Cash.Sub(a.FrozenCash)
}

// PositionRatio is the share of total assets held as stock, rounded to
// four decimal places. Zero when total asset is zero.
func (a *Account) PositionRatio() decimal.Decimal {
	if a.TotalAsset.IsZero() {
		return decimal.Zero
	}
	return a.MarketValue.Div(a.TotalAsset).Round(ratioPlaces)
}

// AccountSnapshot is the once-per-trading-day capture the engine takes at
// day start. The daily loss rule measures drawdown against it.
type AccountSnapshot struct {
	gorm.Model      `json:"-"`
	Date            string          `gorm:"uniqueIndex" json:"date"` // YYYY-MM-DD
	AccountID       string          `json:"account_id"`
	TotalAsset      decimal.Decimal `gorm:"type:decimal(20,8)" json:"total_asset"`
	Cash            decimal.Decimal `gorm:"type:decimal(20,8)" json:"cash"`
	MarketValue     decimal.Decimal `gorm:"type:decimal(20,8)" json:"market_value"`
	TotalProfitLoss decimal.Decimal `gorm:"type:decimal(20,8)" json:"total_profit_loss"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TradeLog is a persistent audit record of engine activity.
type TradeLog struct {
	gorm.Model `json:"-"`
	Level      string    `gorm:"index" json:"level"` // INFO, WARNING, ERROR
	Message    string    `json:"message"`
	Context    string    `json:"context,omitempty"` // JSON encoded detail
	CreatedAt  time.Time `json:"created_at"`
}
