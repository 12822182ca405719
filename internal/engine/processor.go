// Package engine runs the evaluation loop: one ticker, one sequential
// pass per tick. The scheduler decides what a tick may do (capture the
// day-start baseline, fetch signals, execute the pending backlog,
// reconcile active orders), and everything within a tick completes
// before the next one fires.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ksred/tradeflow-api/internal/broker"
	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/executor"
	"github.com/ksred/tradeflow-api/internal/journal"
	"github.com/ksred/tradeflow-api/internal/risk"
	"github.com/ksred/tradeflow-api/internal/scheduler"
	"github.com/ksred/tradeflow-api/internal/signals"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	dayFormat    = "2006-01-02"
	minuteFormat = "2006-01-02 15:04"
)

// Processor is the background engine loop.
type Processor struct {
	scheduler *scheduler.Scheduler
	signals   *signals.Service
	executor  *executor.Service
	risk      *risk.Manager
	broker    broker.Broker
	journal   *journal.Service
	db        *Database
	logger    zerolog.Logger

	tickInterval time.Duration
	syncInterval time.Duration

	// now is the clock; replaced in tests.
	now func() time.Time

	mu            sync.Mutex
	running       bool
	baselineDay   string
	fetchMinute   string
	executeMinute string
	lastSync      time.Time
}

// NewProcessor wires the engine loop.
func NewProcessor(
	cfg config.EngineConfig,
	sched *scheduler.Scheduler,
	sig *signals.Service,
	exec *executor.Service,
	riskMgr *risk.Manager,
	b broker.Broker,
	j *journal.Service,
	gormDB *gorm.DB,
) *Processor {
	return &Processor{
		scheduler:    sched,
		signals:      sig,
		executor:     exec,
		risk:         riskMgr,
		broker:       b,
		journal:      j,
		db:           NewDatabase(gormDB),
		logger:       log.With().Str("component", "engine").Logger(),
		tickInterval: time.Duration(cfg.TickIntervalSeconds) * time.Second,
		syncInterval: time.Duration(cfg.SyncIntervalSeconds) * time.Second,
		now:          time.Now,
	}
}

// Start runs the evaluation loop until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info().
		Dur("tick_interval", p.tickInterval).
		Dur("sync_interval", p.syncInterval).
		Msg("starting trading engine")

	if !p.broker.IsConnected() {
		if err := p.broker.Connect(); err != nil {
			p.logger.Error().Err(err).Msg("broker connection failed, will retry on ticks")
		}
	}

	p.setRunning(true)
	defer p.setRunning(false)

	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("shutting down trading engine")
			return
		case <-ticker.C:
			p.Tick(p.now())
		}
	}
}

// Tick runs one sequential evaluation pass for the given instant.
func (p *Processor) Tick(now time.Time) {
	if !p.scheduler.IsTradingDay(now) {
		return
	}

	if !p.broker.IsConnected() {
		if err := p.broker.Connect(); err != nil {
			p.logger.Warn().Err(err).Msg("broker still unreachable")
			return
		}
	}

	p.rolloverDay(now)

	if p.scheduler.IsFetchTime(now) && p.claimMinute(&p.fetchMinute, now) {
		p.fetchSignals()
	}

	if p.scheduler.IsExecuteTime(now) && p.claimMinute(&p.executeMinute, now) {
		p.executePendingSignals()
	}

	if p.scheduler.IsTradingTime(now) && p.claimSync(now) {
		p.executor.SyncAllActiveOrders()
		p.inspectRisk()
	}
}

// rolloverDay captures the day-start account snapshot on the first tick
// of a new trading day and resets the daily-loss baseline from it.
func (p *Processor) rolloverDay(now time.Time) {
	day := now.Format(dayFormat)

	p.mu.Lock()
	if p.baselineDay == day {
		p.mu.Unlock()
		return
	}
	p.baselineDay = day
	p.mu.Unlock()

	account, err := p.broker.GetAccount()
	if err != nil {
		p.journal.Warning("day-start account snapshot failed: "+err.Error(), nil)
		// Retry on the next tick.
		p.mu.Lock()
		p.baselineDay = ""
		p.mu.Unlock()
		return
	}

	snapshot := &types.AccountSnapshot{
		Date:            day,
		AccountID:       account.AccountID,
		TotalAsset:      account.TotalAsset,
		Cash:            account.Cash,
		MarketValue:     account.MarketValue,
		TotalProfitLoss: account.TotalProfitLoss,
	}
	if err := p.db.SaveSnapshot(snapshot); err != nil {
		p.logger.Error().Err(err).Msg("failed to persist day-start snapshot")
	}

	p.risk.SetInitialAsset(account.TotalAsset)
	p.journal.Info("trading day started", map[string]interface{}{
		"date":        day,
		"total_asset": account.TotalAsset.String(),
	})
}

func (p *Processor) fetchSignals() {
	if _, err := p.signals.FetchSignals(); err != nil {
		p.journal.Error("scheduled signal fetch failed: "+err.Error(), nil)
	}
}

// executePendingSignals drains the backlog sequentially. Each signal's
// risk-check-then-submit sequence completes before the next begins, with
// fresh account and position snapshots per signal.
func (p *Processor) executePendingSignals() {
	pending, err := p.signals.GetPendingSignals()
	if err != nil {
		p.journal.Error("failed to load pending signals: "+err.Error(), nil)
		return
	}
	if len(pending) == 0 {
		p.logger.Info().Msg("no pending signals to execute")
		return
	}

	p.logger.Info().Int("count", len(pending)).Msg("executing pending signals")

	for i := range pending {
		signal := &pending[i]

		order, err := p.executor.ExecuteSignal(signal, nil, nil)
		if err != nil {
			if ctrlErr, ok := risk.AsControlError(err); ok {
				p.journal.Warning("signal blocked by risk control: "+ctrlErr.Message, map[string]interface{}{
					"signal_id": signal.SignalID,
					"rule":      ctrlErr.Rule,
				})
			} else {
				p.journal.Error("signal execution failed: "+err.Error(), map[string]interface{}{
					"signal_id": signal.SignalID,
				})
			}
			continue
		}

		if signal.Executed {
			if err := p.signals.SaveSignal(signal); err != nil {
				p.logger.Error().Err(err).Str("signal_id", signal.SignalID).Msg("failed to persist executed mark")
			}
		}

		p.logger.Info().
			Str("signal_id", signal.SignalID).
			Str("order_id", order.OrderID).
			Str("status", string(order.Status)).
			Msg("signal processed")
	}
}

// inspectRisk runs the non-gating position inspection and journals any
// tripped rule.
func (p *Processor) inspectRisk() {
	account, err := p.broker.GetAccount()
	if err != nil {
		p.logger.Warn().Err(err).Msg("account snapshot for risk inspection failed")
		return
	}
	positions, err := p.broker.GetPositions()
	if err != nil {
		p.logger.Warn().Err(err).Msg("position snapshot for risk inspection failed")
		return
	}

	for _, result := range p.risk.CheckAll(account, positions) {
		if result.Passed {
			continue
		}
		p.journal.Warning("risk alert ["+result.Rule+"]: "+result.Message, result.Details)
	}
}

// claimMinute marks the instant's minute as handled, returning false if
// it already was. The dedup is what makes the point-match scheduling safe
// with a sub-minute tick interval.
func (p *Processor) claimMinute(slot *string, now time.Time) bool {
	key := now.Format(minuteFormat)

	p.mu.Lock()
	defer p.mu.Unlock()
	if *slot == key {
		return false
	}
	*slot = key
	return true
}

func (p *Processor) claimSync(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if now.Sub(p.lastSync) < p.syncInterval {
		return false
	}
	p.lastSync = now
	return true
}

func (p *Processor) setRunning(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = v
}

// Status reports the engine's current view for the API and CLI.
func (p *Processor) Status() types.EngineStatus {
	now := p.now()

	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	status := types.EngineStatus{
		Running:          running,
		CurrentTime:      now,
		TradingDay:       p.scheduler.IsTradingDay(now),
		TradingTime:      p.scheduler.IsTradingTime(now),
		MorningSession:   p.scheduler.MorningSession(),
		AfternoonSession: p.scheduler.AfternoonSession(),
		SignalFetchTime:  p.scheduler.FetchTime(),
		OrderExecuteTime: p.scheduler.ExecuteTime(),
		RiskEnabled:      p.risk.Enabled(),
		BrokerName:       p.broker.Name(),
		BrokerConnected:  p.broker.IsConnected(),
	}

	if next, ok := p.scheduler.NextTradingInstant(now); ok {
		status.NextTradingInstant = &next
	}

	if count, err := p.executor.GetDB().CountActiveOrders(); err == nil {
		status.ActiveOrders = count
	}
	if count, err := p.signals.CountPendingSignals(); err == nil {
		status.PendingSignals = count
	}
	if counts, err := p.executor.GetDB().CountOrdersByStatus(); err == nil {
		status.OrdersToday = counts
	}

	return status
}
