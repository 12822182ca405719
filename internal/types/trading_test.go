package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		wantErr bool
	}{
		{"pending to submitted", OrderStatusPending, OrderStatusSubmitted, false},
		{"pending to cancelled", OrderStatusPending, OrderStatusCancelled, false},
		{"pending to rejected", OrderStatusPending, OrderStatusRejected, false},
		{"pending to failed", OrderStatusPending, OrderStatusFailed, false},
		{"pending cannot fill directly", OrderStatusPending, OrderStatusFilled, true},
		{"pending cannot partially fill", OrderStatusPending, OrderStatusPartialFilled, true},
		{"submitted to partial", OrderStatusSubmitted, OrderStatusPartialFilled, false},
		{"submitted to filled", OrderStatusSubmitted, OrderStatusFilled, false},
		{"submitted to cancelled", OrderStatusSubmitted, OrderStatusCancelled, false},
		{"submitted cannot go back to pending", OrderStatusSubmitted, OrderStatusPending, true},
		{"partial to partial", OrderStatusPartialFilled, OrderStatusPartialFilled, false},
		{"partial to filled", OrderStatusPartialFilled, OrderStatusFilled, false},
		{"partial to cancelled", OrderStatusPartialFilled, OrderStatusCancelled, false},
		{"partial cannot be rejected", OrderStatusPartialFilled, OrderStatusRejected, true},
		{"filled is terminal", OrderStatusFilled, OrderStatusCancelled, true},
		{"cancelled is terminal", OrderStatusCancelled, OrderStatusSubmitted, true},
		{"rejected is terminal", OrderStatusRejected, OrderStatusSubmitted, true},
		{"failed is terminal", OrderStatusFailed, OrderStatusSubmitted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &Order{OrderID: "ORD_test", Status: tt.from}
			err := order.UpdateStatus(tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, order.Status, "failed transition must not mutate status")
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, order.Status)
			}
		})
	}
}

func TestUpdateStatusSameStatusIsNoOp(t *testing.T) {
	t.Parallel()

	// Terminal or not, moving to the current status never errors.
	for _, status := range []OrderStatus{
		OrderStatusPending, OrderStatusSubmitted, OrderStatusPartialFilled,
		OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusFailed,
	} {
		order := &Order{Status: status}
		assert.NoError(t, order.UpdateStatus(status))
		assert.Equal(t, status, order.Status)
	}
}

func TestOrderCompletionAndActivity(t *testing.T) {
	t.Parallel()

	terminal := map[OrderStatus]bool{
		OrderStatusFilled:    true,
		OrderStatusCancelled: true,
		OrderStatusRejected:  true,
		OrderStatusFailed:    true,
	}
	active := map[OrderStatus]bool{
		OrderStatusSubmitted:     true,
		OrderStatusPartialFilled: true,
	}

	for _, status := range []OrderStatus{
		OrderStatusPending, OrderStatusSubmitted, OrderStatusPartialFilled,
		OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusFailed,
	} {
		order := &Order{Status: status}
		assert.Equal(t, terminal[status], order.IsCompleted(), "IsCompleted for %s", status)
		assert.Equal(t, active[status], order.IsActive(), "IsActive for %s", status)
	}
}

func TestUnfilledQuantity(t *testing.T) {
	t.Parallel()

	order := &Order{
		Quantity:       decimal.NewFromInt(1000),
		FilledQuantity: decimal.NewFromInt(400),
	}
	assert.True(t, order.UnfilledQuantity().Equal(decimal.NewFromInt(600)))
}

func TestSignalValidate(t *testing.T) {
	t.Parallel()

	valid := func() Signal {
		return Signal{
			SignalID:       "SIG_1",
			Symbol:         "600519",
			SignalType:     SignalTypeBuy,
			TargetQuantity: decimal.NewFromInt(100),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Signal)
		wantErr bool
	}{
		{"valid buy", func(s *Signal) {}, false},
		{"valid sell", func(s *Signal) { s.SignalType = SignalTypeSell }, false},
		{"valid with price", func(s *Signal) { s.TargetPrice = decimal.NewNullDecimal(decimal.NewFromInt(18)) }, false},
		{"missing id", func(s *Signal) { s.SignalID = "" }, true},
		{"missing symbol", func(s *Signal) { s.Symbol = "" }, true},
		{"unknown type", func(s *Signal) { s.SignalType = "HOLD" }, true},
		{"negative quantity", func(s *Signal) { s.TargetQuantity = decimal.NewFromInt(-100) }, true},
		{"zero price", func(s *Signal) { s.TargetPrice = decimal.NewNullDecimal(decimal.Zero) }, true},
		{"negative price", func(s *Signal) { s.TargetPrice = decimal.NewNullDecimal(decimal.NewFromInt(-1)) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := valid()
			tt.mutate(&signal)
			err := signal.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSignalMarkExecutedIsImmutable(t *testing.T) {
	t.Parallel()

	signal := Signal{
		SignalID:       "SIG_once",
		Symbol:         "600519",
		SignalType:     SignalTypeBuy,
		TargetQuantity: decimal.NewFromInt(100),
	}

	require.NoError(t, signal.MarkExecuted("ORD_first"))
	assert.True(t, signal.Executed)
	assert.Equal(t, "ORD_first", signal.OrderID)
	require.NotNil(t, signal.ExecutedAt)

	// The second mark must not overwrite the order link.
	err := signal.MarkExecuted("ORD_second")
	assert.ErrorIs(t, err, ErrSignalExecuted)
	assert.Equal(t, "ORD_first", signal.OrderID)
}
