package types

import "time"

// RiskCheckResult is the outcome of a single risk rule evaluation.
// Rule carries the rule identifier ("order_amount", "daily_loss", ...),
// or "all" when every check passed, or "disabled" when risk control is
// switched off.
type RiskCheckResult struct {
	Passed  bool                   `json:"passed"`
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// EngineStatus represents the response from the status endpoint
type EngineStatus struct {
	Running            bool       `json:"running"`
	CurrentTime        time.Time  `json:"current_time"`
	TradingDay         bool       `json:"is_trading_day"`
	TradingTime        bool       `json:"is_trading_time"`
	MorningSession     string     `json:"morning_session"`
	AfternoonSession   string     `json:"afternoon_session"`
	SignalFetchTime    string     `json:"signal_fetch_time"`
	OrderExecuteTime   string     `json:"order_execute_time"`
	NextTradingInstant *time.Time `json:"next_trading_instant,omitempty"`
	RiskEnabled        bool       `json:"risk_enabled"`
	BrokerName         string     `json:"broker_name"`
	BrokerConnected    bool       `json:"broker_connected"`
	ActiveOrders       int64      `json:"active_orders"`
	PendingSignals     int64      `json:"pending_signals"`

	// OrdersToday breaks today's orders down per lifecycle status.
	OrdersToday map[OrderStatus]int64 `json:"orders_today,omitempty"`
}
