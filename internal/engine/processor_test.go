package engine

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ksred/tradeflow-api/internal/broker"
	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/database"
	"github.com/ksred/tradeflow-api/internal/executor"
	"github.com/ksred/tradeflow-api/internal/journal"
	"github.com/ksred/tradeflow-api/internal/risk"
	"github.com/ksred/tradeflow-api/internal/scheduler"
	"github.com/ksred/tradeflow-api/internal/signals"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// engineBroker counts calls so ticks can be asserted on.
type engineBroker struct {
	accountCalls int
	queryCalls   int
	accountErr   error

	totalAsset decimal.Decimal
}

func (b *engineBroker) Name() string       { return "fake" }
func (b *engineBroker) IsConnected() bool  { return true }
func (b *engineBroker) IsSimulation() bool { return true }
func (b *engineBroker) Connect() error     { return nil }
func (b *engineBroker) Disconnect() error  { return nil }

func (b *engineBroker) SubmitOrder(*types.Order) (*broker.SubmitResult, error) {
	return &broker.SubmitResult{Success: true, BrokerOrderID: "FAKE_1", Message: "accepted"}, nil
}

func (b *engineBroker) CancelOrder(string) (bool, error) { return true, nil }

func (b *engineBroker) QueryOrder(brokerOrderID string) (*broker.OrderSnapshot, error) {
	b.queryCalls++
	return &broker.OrderSnapshot{
		BrokerOrderID:  brokerOrderID,
		Status:         types.OrderStatusFilled,
		FilledQuantity: decimal.NewFromInt(100),
		FilledPrice:    decimal.NewNullDecimal(decimal.NewFromInt(18)),
	}, nil
}

func (b *engineBroker) GetPositions() ([]types.Position, error) { return nil, nil }

func (b *engineBroker) GetAccount() (*types.Account, error) {
	b.accountCalls++
	if b.accountErr != nil {
		return nil, b.accountErr
	}
	asset := b.totalAsset
	if asset.IsZero() {
		asset = decimal.NewFromInt(1000000)
	}
	return &types.Account{
		AccountID:  "FAKE_ACCOUNT",
		TotalAsset: asset,
		Cash:       asset,
	}, nil
}

// fakeFeed replays one canned batch per fetch.
type fakeFeed struct {
	batch   []types.Signal
	fetches int
}

func (f *fakeFeed) Name() string      { return "fake" }
func (f *fakeFeed) IsConnected() bool { return true }
func (f *fakeFeed) Connect() error    { return nil }
func (f *fakeFeed) Close() error      { return nil }
func (f *fakeFeed) Fetch() ([]types.Signal, error) {
	f.fetches++
	out := make([]types.Signal, len(f.batch))
	copy(out, f.batch)
	return out, nil
}

type engineFixture struct {
	processor *Processor
	broker    *engineBroker
	feed      *fakeFeed
	riskMgr   *risk.Manager
	signals   *signals.Service
	executor  *executor.Service
	db        *gorm.DB
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	cfg := config.Default()
	sched, err := scheduler.New(cfg.Trading)
	require.NoError(t, err)

	b := &engineBroker{}
	feedProvider := &fakeFeed{}
	j := journal.NewService(db)
	riskMgr := risk.NewManager(cfg.Risk)
	sigSvc := signals.NewService(db, feedProvider)
	execSvc := executor.NewService(db, b, riskMgr, j)

	p := NewProcessor(cfg.Engine, sched, sigSvc, execSvc, riskMgr, b, j, db)

	return &engineFixture{
		processor: p,
		broker:    b,
		feed:      feedProvider,
		riskMgr:   riskMgr,
		signals:   sigSvc,
		executor:  execSvc,
		db:        db,
	}
}

// 2025-06-02 is a Monday.
func monday(hour, min, sec int) time.Time {
	return time.Date(2025, 6, 2, hour, min, sec, 0, time.Local)
}

func TestTickSkipsWeekends(t *testing.T) {
	f := newFixture(t)

	saturday := time.Date(2025, 6, 7, 9, 35, 0, 0, time.Local)
	f.processor.Tick(saturday)

	assert.Zero(t, f.broker.accountCalls, "no baseline capture on a weekend")
	assert.True(t, f.riskMgr.InitialAsset().IsZero())
}

func TestTickCapturesDayStartBaselineOnce(t *testing.T) {
	f := newFixture(t)
	f.broker.totalAsset = decimal.NewFromInt(500000)

	f.processor.Tick(monday(8, 0, 0))
	assert.Equal(t, 1, f.broker.accountCalls)
	assert.True(t, f.riskMgr.InitialAsset().Equal(decimal.NewFromInt(500000)))

	snapshot, err := NewDatabase(f.db).GetSnapshot("2025-06-02")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.True(t, snapshot.TotalAsset.Equal(decimal.NewFromInt(500000)))

	// Later ticks of the same day do not re-capture.
	f.processor.Tick(monday(8, 0, 10))
	f.processor.Tick(monday(8, 30, 0))
	assert.Equal(t, 1, f.broker.accountCalls)

	// A new day does.
	f.processor.Tick(monday(8, 0, 0).AddDate(0, 0, 1))
	assert.Equal(t, 2, f.broker.accountCalls)
}

func TestTickRetriesBaselineAfterBrokerFailure(t *testing.T) {
	f := newFixture(t)
	f.broker.accountErr = errors.New("gateway timeout")

	f.processor.Tick(monday(8, 0, 0))
	assert.Equal(t, 1, f.broker.accountCalls)
	assert.True(t, f.riskMgr.InitialAsset().IsZero())

	// The broker recovers; the next tick retries the capture.
	f.broker.accountErr = nil
	f.processor.Tick(monday(8, 0, 10))
	assert.Equal(t, 2, f.broker.accountCalls)
	assert.False(t, f.riskMgr.InitialAsset().IsZero())
}

func TestTickFetchesSignalsOncePerMinute(t *testing.T) {
	f := newFixture(t)
	f.feed.batch = []types.Signal{{
		SignalID:       "SIG_feed",
		Symbol:         "600519",
		SignalType:     types.SignalTypeBuy,
		TargetQuantity: decimal.NewFromInt(100),
	}}

	// Sub-minute ticks inside the fetch minute collapse to one fetch.
	f.processor.Tick(monday(9, 0, 0))
	f.processor.Tick(monday(9, 0, 10))
	f.processor.Tick(monday(9, 0, 50))
	assert.Equal(t, 1, f.feed.fetches)

	// Outside the fetch minute nothing happens.
	f.processor.Tick(monday(9, 1, 0))
	assert.Equal(t, 1, f.feed.fetches)

	// The same minute on the next day fetches again.
	f.processor.Tick(monday(9, 0, 0).AddDate(0, 0, 1))
	assert.Equal(t, 2, f.feed.fetches)

	pending, err := f.signals.GetPendingSignals()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestTickExecutesPendingSignals(t *testing.T) {
	f := newFixture(t)

	signal := &types.Signal{
		SignalID:       "SIG_run",
		Symbol:         "600519",
		SignalType:     types.SignalTypeBuy,
		TargetQuantity: decimal.NewFromInt(100),
		TargetPrice:    decimal.NewNullDecimal(decimal.NewFromInt(18)),
		Source:         "test",
	}
	require.NoError(t, f.signals.SaveSignal(signal))

	f.processor.Tick(monday(9, 35, 0))

	// The signal left the backlog with its order link persisted.
	stored, err := f.signals.GetSignal("SIG_run")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Executed)
	require.NotEmpty(t, stored.OrderID)

	// 09:35 is inside the morning session, so the same tick's sync pass
	// already reconciled the submitted order against the broker's fill.
	order, err := f.executor.GetOrder(stored.OrderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, types.OrderStatusFilled, order.Status)
}

func TestTickLeavesBlockedSignalsPending(t *testing.T) {
	f := newFixture(t)

	// 10000 * 18 notional blows the order amount cap.
	blocked := &types.Signal{
		SignalID:       "SIG_blocked",
		Symbol:         "600519",
		SignalType:     types.SignalTypeBuy,
		TargetQuantity: decimal.NewFromInt(10000),
		TargetPrice:    decimal.NewNullDecimal(decimal.NewFromInt(18)),
		Source:         "test",
	}
	require.NoError(t, f.signals.SaveSignal(blocked))

	f.processor.Tick(monday(9, 35, 0))

	stored, err := f.signals.GetSignal("SIG_blocked")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Executed)

	orders, err := f.executor.ListOrders("", "", 0)
	require.NoError(t, err)
	assert.Empty(t, orders, "blocked signals leave no order rows")
}

func TestTickSyncsActiveOrdersAtInterval(t *testing.T) {
	f := newFixture(t)

	order := &types.Order{
		OrderID:       "ORD_live",
		Symbol:        "600519",
		Side:          types.SignalTypeBuy,
		OrderType:     types.OrderTypeLimit,
		Quantity:      decimal.NewFromInt(100),
		Price:         decimal.NewNullDecimal(decimal.NewFromInt(18)),
		Status:        types.OrderStatusSubmitted,
		BrokerOrderID: "FAKE_live",
	}
	require.NoError(t, f.executor.GetDB().SaveOrder(order))

	// Inside a session the sync claim fires.
	f.processor.Tick(monday(10, 0, 0))
	assert.Equal(t, 1, f.broker.queryCalls)

	stored, err := f.executor.GetOrder("ORD_live")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusFilled, stored.Status)

	// Another tick inside the sync interval does not re-query.
	f.processor.Tick(monday(10, 0, 10))
	assert.Equal(t, 1, f.broker.queryCalls)

	// Past the 30s interval it syncs again; the order is now terminal so
	// the active set is empty and no broker query happens.
	f.processor.Tick(monday(10, 1, 0))
	assert.Equal(t, 1, f.broker.queryCalls)
}

func TestTickNoSyncOutsideSessions(t *testing.T) {
	f := newFixture(t)

	order := &types.Order{
		OrderID:       "ORD_after_hours",
		Symbol:        "600519",
		Side:          types.SignalTypeBuy,
		OrderType:     types.OrderTypeLimit,
		Quantity:      decimal.NewFromInt(100),
		Status:        types.OrderStatusSubmitted,
		BrokerOrderID: "FAKE_after_hours",
	}
	require.NoError(t, f.executor.GetDB().SaveOrder(order))

	f.processor.Tick(monday(12, 0, 0)) // lunch break
	f.processor.Tick(monday(16, 0, 0)) // after close
	assert.Zero(t, f.broker.queryCalls)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.processor.now = func() time.Time { return monday(10, 0, 0) }

	status := f.processor.Status()

	assert.False(t, status.Running)
	assert.True(t, status.TradingDay)
	assert.True(t, status.TradingTime)
	assert.True(t, status.RiskEnabled)
	assert.Equal(t, "fake", status.BrokerName)
	assert.True(t, status.BrokerConnected)
	assert.Equal(t, "09:30 - 11:30", status.MorningSession)
	assert.Equal(t, "09:00", status.SignalFetchTime)
	assert.Nil(t, status.NextTradingInstant, "no lookahead inside a session")
	assert.Empty(t, status.OrdersToday)

	require.NoError(t, f.executor.GetDB().CreateOrder(&types.Order{
		OrderID:  "ORD_today",
		Symbol:   "600519",
		Side:     types.SignalTypeBuy,
		Quantity: decimal.NewFromInt(100),
		Status:   types.OrderStatusFilled,
	}))

	status = f.processor.Status()
	assert.Equal(t, int64(1), status.OrdersToday[types.OrderStatusFilled])
}
