package risk

import (
	"errors"
	"fmt"
)

// Error codes carried by risk-control failures. pkg/response maps them to
// HTTP statuses; CLI callers branch on them.
const (
	CodeRiskControl    = "RISK_CONTROL_ERROR"
	CodePositionLimit  = "POSITION_LIMIT"
	CodeDailyLossLimit = "DAILY_LOSS_LIMIT"
	CodeStopLoss       = "STOP_LOSS"
)

// ControlError is an order rejected by risk control before it ever
// reached the broker. Rule names the failing check.
type ControlError struct {
	Rule    string
	Code    string
	Message string
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("risk control [%s]: %s", e.Rule, e.Message)
}

// ErrorCode satisfies response.Coded.
func (e *ControlError) ErrorCode() string {
	return e.Code
}

// PositionLimitError is a ControlError for the position and holdings
// exposure rules.
type PositionLimitError struct {
	ControlError
}

// DailyLossLimitError is a ControlError for the account-level daily
// drawdown rule.
type DailyLossLimitError struct {
	ControlError
}

// StopLossError is a ControlError for the per-position stop-loss rule.
type StopLossError struct {
	ControlError
}

// AsControlError unwraps err to the underlying ControlError regardless of
// which concrete rule type raised it.
func AsControlError(err error) (*ControlError, bool) {
	var posErr *PositionLimitError
	if errors.As(err, &posErr) {
		return &posErr.ControlError, true
	}
	var lossErr *DailyLossLimitError
	if errors.As(err, &lossErr) {
		return &lossErr.ControlError, true
	}
	var stopErr *StopLossError
	if errors.As(err, &stopErr) {
		return &stopErr.ControlError, true
	}
	var ctrlErr *ControlError
	if errors.As(err, &ctrlErr) {
		return ctrlErr, true
	}
	return nil, false
}

func newControlError(rule, message string) error {
	switch rule {
	case RulePositionLimit, RuleHoldingsLimit:
		return &PositionLimitError{ControlError{Rule: rule, Code: CodePositionLimit, Message: message}}
	case RuleDailyLoss:
		return &DailyLossLimitError{ControlError{Rule: rule, Code: CodeDailyLossLimit, Message: message}}
	case RuleStopLoss:
		return &StopLossError{ControlError{Rule: rule, Code: CodeStopLoss, Message: message}}
	default:
		return &ControlError{Rule: rule, Code: CodeRiskControl, Message: message}
	}
}
