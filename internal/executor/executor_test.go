package executor

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ksred/tradeflow-api/internal/broker"
	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/database"
	"github.com/ksred/tradeflow-api/internal/journal"
	"github.com/ksred/tradeflow-api/internal/risk"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeBroker scripts broker behaviour per test.
type fakeBroker struct {
	submitFn func(*types.Order) (*broker.SubmitResult, error)
	cancelFn func(string) (bool, error)
	queryFn  func(string) (*broker.OrderSnapshot, error)

	account   *types.Account
	positions []types.Position
}

func (f *fakeBroker) Name() string       { return "fake" }
func (f *fakeBroker) IsConnected() bool  { return true }
func (f *fakeBroker) IsSimulation() bool { return true }
func (f *fakeBroker) Connect() error     { return nil }
func (f *fakeBroker) Disconnect() error  { return nil }

func (f *fakeBroker) SubmitOrder(order *types.Order) (*broker.SubmitResult, error) {
	if f.submitFn != nil {
		return f.submitFn(order)
	}
	return &broker.SubmitResult{Success: true, BrokerOrderID: "FAKE_1", Message: "accepted"}, nil
}

func (f *fakeBroker) CancelOrder(brokerOrderID string) (bool, error) {
	if f.cancelFn != nil {
		return f.cancelFn(brokerOrderID)
	}
	return true, nil
}

func (f *fakeBroker) QueryOrder(brokerOrderID string) (*broker.OrderSnapshot, error) {
	if f.queryFn != nil {
		return f.queryFn(brokerOrderID)
	}
	return nil, nil
}

func (f *fakeBroker) GetPositions() ([]types.Position, error) {
	return f.positions, nil
}

func (f *fakeBroker) GetAccount() (*types.Account, error) {
	if f.account != nil {
		return f.account, nil
	}
	return &types.Account{
		AccountID:  "FAKE_ACCOUNT",
		TotalAsset: decimal.NewFromInt(1000000),
		Cash:       decimal.NewFromInt(1000000),
	}, nil
}

func newTestService(t *testing.T, fb *fakeBroker, riskEnabled bool) (*Service, *gorm.DB) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	riskCfg := config.Default().Risk
	riskCfg.Enabled = riskEnabled

	return NewService(db, fb, risk.NewManager(riskCfg), journal.NewService(db)), db
}

func testSignal(id string) *types.Signal {
	return &types.Signal{
		SignalID:       id,
		Symbol:         "600519",
		SignalType:     types.SignalTypeBuy,
		TargetQuantity: decimal.NewFromInt(100),
		TargetPrice:    decimal.NewNullDecimal(decimal.NewFromInt(18)),
		Source:         "test",
	}
}

func TestExecuteSignalSuccess(t *testing.T) {
	s, _ := newTestService(t, &fakeBroker{}, true)
	signal := testSignal("SIG_ok")

	order, err := s.ExecuteSignal(signal, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, types.OrderStatusSubmitted, order.Status)
	assert.Equal(t, "FAKE_1", order.BrokerOrderID)
	assert.Equal(t, types.OrderTypeLimit, order.OrderType)
	assert.Equal(t, signal.SignalID, order.SignalID)

	// Success marks the signal and links the order.
	assert.True(t, signal.Executed)
	assert.Equal(t, order.OrderID, signal.OrderID)

	stored, err := s.GetOrder(order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, types.OrderStatusSubmitted, stored.Status)
}

func TestExecuteSignalRiskViolationPersistsNothing(t *testing.T) {
	s, _ := newTestService(t, &fakeBroker{}, true)

	// 50000 * 18 = 900k notional, far over the 100k order cap.
	signal := testSignal("SIG_blocked")
	signal.TargetQuantity = decimal.NewFromInt(50000)

	order, err := s.ExecuteSignal(signal, nil, nil)
	require.Error(t, err)
	assert.Nil(t, order)

	ctrl, ok := risk.AsControlError(err)
	require.True(t, ok)
	assert.Equal(t, risk.RuleOrderAmount, ctrl.Rule)

	// The violation aborted before persistence: no order rows, signal
	// untouched.
	orders, err := s.ListOrders("", "", 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.False(t, signal.Executed)
}

func TestExecuteSignalBrokerRejection(t *testing.T) {
	fb := &fakeBroker{
		submitFn: func(*types.Order) (*broker.SubmitResult, error) {
			return &broker.SubmitResult{Success: false, Message: "order rejected by venue"}, nil
		},
	}
	s, _ := newTestService(t, fb, true)

	// Market order: no target price, so the amount check is skipped and
	// the broker gets its say.
	signal := testSignal("SIG_rejected")
	signal.TargetPrice = decimal.NullDecimal{}

	order, err := s.ExecuteSignal(signal, nil, nil)

	// Rejection is an outcome, not an error.
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, types.OrderStatusRejected, order.Status)
	assert.Equal(t, types.OrderTypeMarket, order.OrderType)
	assert.Equal(t, "order rejected by venue", order.ErrorMessage)

	// A rejected signal stays in the pending backlog.
	assert.False(t, signal.Executed)
	assert.Empty(t, signal.OrderID)

	stored, err := s.GetOrder(order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, types.OrderStatusRejected, stored.Status)
}

func TestExecuteSignalBrokerErrorIsRejection(t *testing.T) {
	fb := &fakeBroker{
		submitFn: func(*types.Order) (*broker.SubmitResult, error) {
			return nil, errors.New("connection reset")
		},
	}
	s, _ := newTestService(t, fb, false)

	signal := testSignal("SIG_err")
	order, err := s.ExecuteSignal(signal, nil, nil)

	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, types.OrderStatusRejected, order.Status)
	assert.Equal(t, "connection reset", order.ErrorMessage)
}

func TestSubmitOrderSuccess(t *testing.T) {
	s, _ := newTestService(t, &fakeBroker{}, false)

	order := &types.Order{
		Symbol:    "600519",
		Side:      types.SignalTypeBuy,
		OrderType: types.OrderTypeLimit,
		Quantity:  decimal.NewFromInt(100),
		Price:     decimal.NewNullDecimal(decimal.NewFromInt(18)),
	}

	require.NoError(t, s.SubmitOrder(order))
	assert.NotEmpty(t, order.OrderID)
	assert.Equal(t, types.OrderStatusSubmitted, order.Status)
	assert.Equal(t, "FAKE_1", order.BrokerOrderID)
}

func TestSubmitOrderRejectionRaises(t *testing.T) {
	fb := &fakeBroker{
		submitFn: func(*types.Order) (*broker.SubmitResult, error) {
			return &broker.SubmitResult{Success: false, Message: "no liquidity"}, nil
		},
	}
	s, _ := newTestService(t, fb, false)

	order := &types.Order{
		Symbol:    "600519",
		Side:      types.SignalTypeBuy,
		OrderType: types.OrderTypeMarket,
		Quantity:  decimal.NewFromInt(100),
	}

	err := s.SubmitOrder(order)
	require.Error(t, err)

	var submitErr *SubmitError
	require.True(t, errors.As(err, &submitErr))
	assert.Equal(t, CodeOrderSubmit, submitErr.ErrorCode())
	assert.Equal(t, "no liquidity", submitErr.Reason)

	// The rejected order is still on record.
	stored, err := s.GetOrder(order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, types.OrderStatusRejected, stored.Status)
	assert.Equal(t, "no liquidity", stored.ErrorMessage)
}

func TestCancelOrder(t *testing.T) {
	cancelCalls := 0
	fb := &fakeBroker{
		cancelFn: func(string) (bool, error) {
			cancelCalls++
			return true, nil
		},
	}
	s, _ := newTestService(t, fb, false)

	// Unknown order.
	assert.False(t, s.CancelOrder("ORD_missing"))

	// Terminal order: refused without a broker call.
	filled := &types.Order{
		OrderID:       "ORD_filled",
		Symbol:        "600519",
		Side:          types.SignalTypeBuy,
		OrderType:     types.OrderTypeLimit,
		Quantity:      decimal.NewFromInt(100),
		Status:        types.OrderStatusFilled,
		BrokerOrderID: "FAKE_filled",
	}
	require.NoError(t, s.db.SaveOrder(filled))
	assert.False(t, s.CancelOrder("ORD_filled"))
	assert.Zero(t, cancelCalls)

	// Never submitted: cancelled locally, again without a broker call.
	pending := &types.Order{
		OrderID:   "ORD_pending",
		Symbol:    "600519",
		Side:      types.SignalTypeBuy,
		OrderType: types.OrderTypeLimit,
		Quantity:  decimal.NewFromInt(100),
		Status:    types.OrderStatusPending,
	}
	require.NoError(t, s.db.SaveOrder(pending))
	assert.True(t, s.CancelOrder("ORD_pending"))
	assert.Zero(t, cancelCalls)

	stored, err := s.GetOrder("ORD_pending")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCancelled, stored.Status)

	// Live at the broker: cancelled through it.
	live := &types.Order{
		OrderID:       "ORD_live",
		Symbol:        "600519",
		Side:          types.SignalTypeBuy,
		OrderType:     types.OrderTypeLimit,
		Quantity:      decimal.NewFromInt(100),
		Status:        types.OrderStatusSubmitted,
		BrokerOrderID: "FAKE_live",
	}
	require.NoError(t, s.db.SaveOrder(live))
	assert.True(t, s.CancelOrder("ORD_live"))
	assert.Equal(t, 1, cancelCalls)

	stored, err = s.GetOrder("ORD_live")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCancelled, stored.Status)
}

func TestCancelOrderBrokerFailureIsSwallowed(t *testing.T) {
	fb := &fakeBroker{
		cancelFn: func(string) (bool, error) {
			return false, errors.New("gateway timeout")
		},
	}
	s, _ := newTestService(t, fb, false)

	order := &types.Order{
		OrderID:       "ORD_stuck",
		Symbol:        "600519",
		Side:          types.SignalTypeBuy,
		OrderType:     types.OrderTypeLimit,
		Quantity:      decimal.NewFromInt(100),
		Status:        types.OrderStatusSubmitted,
		BrokerOrderID: "FAKE_stuck",
	}
	require.NoError(t, s.db.SaveOrder(order))

	// The failure reports false; the order keeps its local status.
	assert.False(t, s.CancelOrder("ORD_stuck"))

	stored, err := s.GetOrder("ORD_stuck")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusSubmitted, stored.Status)
}

func TestSyncOrderStatus(t *testing.T) {
	fb := &fakeBroker{
		queryFn: func(brokerOrderID string) (*broker.OrderSnapshot, error) {
			return &broker.OrderSnapshot{
				BrokerOrderID:  brokerOrderID,
				Status:         types.OrderStatusPartialFilled,
				FilledQuantity: decimal.NewFromInt(60),
				FilledPrice:    decimal.NewNullDecimal(decimal.NewFromInt(18)),
			}, nil
		},
	}
	s, _ := newTestService(t, fb, false)

	order := &types.Order{
		OrderID:       "ORD_sync",
		Symbol:        "600519",
		Side:          types.SignalTypeBuy,
		OrderType:     types.OrderTypeLimit,
		Quantity:      decimal.NewFromInt(100),
		Status:        types.OrderStatusSubmitted,
		BrokerOrderID: "FAKE_sync",
	}
	require.NoError(t, s.db.SaveOrder(order))

	synced, err := s.SyncOrderStatus("ORD_sync")
	require.NoError(t, err)
	require.NotNil(t, synced)
	assert.Equal(t, types.OrderStatusPartialFilled, synced.Status)
	assert.True(t, synced.FilledQuantity.Equal(decimal.NewFromInt(60)))

	// Unknown ids are (nil, nil), not an error.
	missing, err := s.SyncOrderStatus("ORD_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSyncOrderStatusQueryFailureKeepsLocalState(t *testing.T) {
	fb := &fakeBroker{
		queryFn: func(string) (*broker.OrderSnapshot, error) {
			return nil, errors.New("gateway timeout")
		},
	}
	s, _ := newTestService(t, fb, false)

	order := &types.Order{
		OrderID:       "ORD_stale",
		Symbol:        "600519",
		Side:          types.SignalTypeBuy,
		OrderType:     types.OrderTypeLimit,
		Quantity:      decimal.NewFromInt(100),
		Status:        types.OrderStatusSubmitted,
		BrokerOrderID: "FAKE_stale",
	}
	require.NoError(t, s.db.SaveOrder(order))

	// The query failed, so the last-known local order comes back.
	synced, err := s.SyncOrderStatus("ORD_stale")
	require.NoError(t, err)
	require.NotNil(t, synced)
	assert.Equal(t, types.OrderStatusSubmitted, synced.Status)
}

func TestSyncAllActiveOrdersContinuesPastFailures(t *testing.T) {
	fb := &fakeBroker{
		queryFn: func(brokerOrderID string) (*broker.OrderSnapshot, error) {
			if brokerOrderID == "FAKE_b" {
				return nil, errors.New("gateway timeout")
			}
			return &broker.OrderSnapshot{
				BrokerOrderID:  brokerOrderID,
				Status:         types.OrderStatusFilled,
				FilledQuantity: decimal.NewFromInt(100),
				FilledPrice:    decimal.NewNullDecimal(decimal.NewFromInt(18)),
			}, nil
		},
	}
	s, _ := newTestService(t, fb, false)

	for _, id := range []string{"a", "b", "c"} {
		order := &types.Order{
			OrderID:       "ORD_" + id,
			Symbol:        "600519",
			Side:          types.SignalTypeBuy,
			OrderType:     types.OrderTypeLimit,
			Quantity:      decimal.NewFromInt(100),
			Status:        types.OrderStatusSubmitted,
			BrokerOrderID: "FAKE_" + id,
		}
		require.NoError(t, s.db.SaveOrder(order))
	}

	refreshed := s.SyncAllActiveOrders()

	// The failed order is absent from the refreshed set; the batch did not
	// abort around it.
	require.Len(t, refreshed, 2)
	for _, order := range refreshed {
		assert.NotEqual(t, "ORD_b", order.OrderID)
		assert.Equal(t, types.OrderStatusFilled, order.Status)
	}

	stale, err := s.GetOrder("ORD_b")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusSubmitted, stale.Status)
}

func TestSaveOrderTerminalGuard(t *testing.T) {
	s, _ := newTestService(t, &fakeBroker{}, false)

	order := &types.Order{
		OrderID:   "ORD_done",
		Symbol:    "600519",
		Side:      types.SignalTypeBuy,
		OrderType: types.OrderTypeLimit,
		Quantity:  decimal.NewFromInt(100),
		Status:    types.OrderStatusFilled,
	}
	require.NoError(t, s.db.SaveOrder(order))

	// A stale writer cannot move a terminal row to another status.
	stale := *order
	stale.Status = types.OrderStatusCancelled
	err := s.db.SaveOrder(&stale)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	// Same-status rewrites are still allowed.
	again := *order
	again.ErrorMessage = "annotated"
	assert.NoError(t, s.db.SaveOrder(&again))
}

func TestExecuteSignalPersistsOrderBeforeSignalMark(t *testing.T) {
	s, _ := newTestService(t, &fakeBroker{}, false)

	// A signal whose executed link is already set cannot be marked again.
	signal := testSignal("SIG_stale")
	require.NoError(t, signal.MarkExecuted("ORD_prior"))

	order, err := s.ExecuteSignal(signal, nil, nil)
	require.ErrorIs(t, err, types.ErrSignalExecuted)
	require.NotNil(t, order)

	// The order reached the broker, so the submitted row with its broker
	// id must already be durable despite the mark failure.
	stored, getErr := s.GetOrder(order.OrderID)
	require.NoError(t, getErr)
	require.NotNil(t, stored)
	assert.Equal(t, types.OrderStatusSubmitted, stored.Status)
	assert.Equal(t, "FAKE_1", stored.BrokerOrderID)

	// The prior link is untouched.
	assert.Equal(t, "ORD_prior", signal.OrderID)
}

func TestGetPendingOrdersOnlyUnsubmitted(t *testing.T) {
	s, _ := newTestService(t, &fakeBroker{}, false)

	seed := []types.Order{
		{OrderID: "ORD_stuck_1", Symbol: "600519", Side: types.SignalTypeBuy, Quantity: decimal.NewFromInt(100), Status: types.OrderStatusPending},
		{OrderID: "ORD_stuck_2", Symbol: "000001", Side: types.SignalTypeSell, Quantity: decimal.NewFromInt(200), Status: types.OrderStatusPending},
		{OrderID: "ORD_live", Symbol: "600519", Side: types.SignalTypeBuy, Quantity: decimal.NewFromInt(100), Status: types.OrderStatusSubmitted},
		{OrderID: "ORD_done", Symbol: "600519", Side: types.SignalTypeBuy, Quantity: decimal.NewFromInt(100), Status: types.OrderStatusFilled},
	}
	for i := range seed {
		require.NoError(t, s.db.CreateOrder(&seed[i]))
	}

	pending, err := s.db.GetPendingOrders()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, o := range pending {
		assert.Equal(t, types.OrderStatusPending, o.Status)
	}
}

func TestCountOrdersByStatus(t *testing.T) {
	s, _ := newTestService(t, &fakeBroker{}, false)

	seed := []types.Order{
		{OrderID: "ORD_a", Symbol: "600519", Side: types.SignalTypeBuy, Quantity: decimal.NewFromInt(100), Status: types.OrderStatusFilled},
		{OrderID: "ORD_b", Symbol: "600519", Side: types.SignalTypeBuy, Quantity: decimal.NewFromInt(100), Status: types.OrderStatusFilled},
		{OrderID: "ORD_c", Symbol: "000001", Side: types.SignalTypeSell, Quantity: decimal.NewFromInt(50), Status: types.OrderStatusRejected},
		{OrderID: "ORD_d", Symbol: "000001", Side: types.SignalTypeBuy, Quantity: decimal.NewFromInt(50), Status: types.OrderStatusPending},
	}
	for i := range seed {
		require.NoError(t, s.db.CreateOrder(&seed[i]))
	}

	counts, err := s.db.CountOrdersByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[types.OrderStatusFilled])
	assert.Equal(t, int64(1), counts[types.OrderStatusRejected])
	assert.Equal(t, int64(1), counts[types.OrderStatusPending])
	assert.NotContains(t, counts, types.OrderStatusCancelled)
}
