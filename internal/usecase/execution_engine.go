package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/RyanLisse/mexc-sniper-bot/internal/config"
	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EngineState string

const (
	EngineIdle   EngineState = "idle"
	EngineActive EngineState = "active"
	EnginePaused EngineState = "paused"
)

// TargetSource supplies candidates and processes them through their
// lifecycle. Satisfied by TargetProcessor.
type TargetSource interface {
	FetchReadyTargets(ctx context.Context, limit int) ([]*domain.SnipeTarget, error)
	Process(ctx context.Context, target *domain.SnipeTarget) (*domain.TradeResult, error)
}

// ExecutionEngine runs the scan/execute cycles: it turns qualifying targets
// into orders, hands fills to the position manager, raises alerts, and
// keeps its history and alert buffers bounded.
type ExecutionEngine struct {
	exchange  domain.Exchange
	risk      domain.RiskService
	breaker   *CircuitBreaker
	positions *PositionManager
	safety    domain.SafetyProbe
	sink      domain.AlertSink // optional outbound alert delivery
	clock     domain.Clock
	logger    *zap.Logger

	mu       sync.Mutex
	state    EngineState
	cfg      *config.Config
	targets  TargetSource
	alerts   []*domain.ExecutionAlert
	tradeLog []*domain.TradeResult
	stats    domain.ExecutionStats
	statsDay string // day the DailyTrades counter belongs to
}

func NewExecutionEngine(
	cfg *config.Config,
	exchange domain.Exchange,
	risk domain.RiskService,
	breaker *CircuitBreaker,
	positions *PositionManager,
	safety domain.SafetyProbe,
	sink domain.AlertSink,
	clock domain.Clock,
	logger *zap.Logger,
) *ExecutionEngine {
	e := &ExecutionEngine{
		exchange:  exchange,
		risk:      risk,
		breaker:   breaker,
		positions: positions,
		safety:    safety,
		sink:      sink,
		clock:     clock,
		logger:    logger,
		state:     EngineIdle,
		cfg:       cfg,
	}
	breaker.OnTrip(func(channel string, failures int) {
		e.raiseAlert(domain.AlertCircuitTripped, domain.SeverityCritical,
			fmt.Sprintf("circuit breaker tripped on %s after %d consecutive failures", channel, failures), "", "")
	})
	positions.OnClose(func(pos *domain.Position, reason string) {
		e.raiseAlert(domain.AlertPositionClosed, domain.SeverityInfo,
			fmt.Sprintf("position %s closed (%s), realized P&L %.4f", pos.Symbol, reason, pos.RealizedPnL),
			pos.Symbol, pos.ID)
	})
	return e
}

// BindTargets wires the target source after construction; the processor
// needs the engine's trade primitive, so the two reference each other.
func (e *ExecutionEngine) BindTargets(source TargetSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.targets = source
}

func (e *ExecutionEngine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *ExecutionEngine) config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Reconfigure swaps in a validated config.
func (e *ExecutionEngine) Reconfigure(cfg *config.Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	e.positions.SetHistoryCap(cfg.Safety.HistorySize)
	e.breaker.Reconfigure(cfg.Safety.CircuitThreshold, cfg.CircuitResetDelay())
}

// Start moves the engine from idle to active. It fails fast when already
// active, when trading is disabled, or when pre-flight checks fail, and
// leaves the prior state untouched on any failure.
func (e *ExecutionEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == EngineActive {
		e.mu.Unlock()
		return errors.New("execution engine already active")
	}
	cfg := e.cfg
	e.mu.Unlock()

	if !cfg.Trading.Enabled {
		return errors.New("trading is disabled in configuration")
	}
	if err := e.preflight(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	e.state = EngineActive
	e.mu.Unlock()
	e.logger.Info("Execution engine started", zap.String("mode", cfg.Trading.Mode))
	return nil
}

func (e *ExecutionEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != EngineActive {
		return fmt.Errorf("cannot pause engine in state %s", e.state)
	}
	e.state = EnginePaused
	e.logger.Info("Execution engine paused")
	return nil
}

// Resume re-validates pre-flight conditions before going active again.
func (e *ExecutionEngine) Resume(ctx context.Context) error {
	e.mu.Lock()
	if e.state != EnginePaused {
		e.mu.Unlock()
		return fmt.Errorf("cannot resume engine in state %s", e.state)
	}
	e.mu.Unlock()

	if err := e.preflight(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	e.state = EngineActive
	e.mu.Unlock()
	e.logger.Info("Execution engine resumed")
	return nil
}

func (e *ExecutionEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = EngineIdle
	e.logger.Info("Execution engine stopped")
}

// preflight probes exchange connectivity and safety-system health.
// Failures are reported, never silently swallowed.
func (e *ExecutionEngine) preflight(ctx context.Context) error {
	cfg := e.config()

	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout())
	err := e.exchange.GetAccountBalances(callCtx)
	cancel()
	if err != nil {
		e.raiseAlert(domain.AlertPreflightFailed, domain.SeverityError,
			"exchange connectivity probe failed: "+err.Error(), "", "")
		return &domain.ExchangeError{Op: "preflight", Err: err}
	}

	health, err := e.safety.HealthCheck(ctx)
	if err != nil {
		e.raiseAlert(domain.AlertPreflightFailed, domain.SeverityError,
			"safety health probe failed: "+err.Error(), "", "")
		return fmt.Errorf("safety health probe: %w", err)
	}
	switch health {
	case domain.HealthCritical:
		e.raiseAlert(domain.AlertPreflightFailed, domain.SeverityCritical,
			"safety system reports critical state, refusing to trade", "", "")
		return &domain.CriticalSafetyError{Status: health}
	case domain.HealthWarning:
		e.logger.Warn("Safety system reports warning state, proceeding")
	}
	return nil
}

// RunCycle is one scan/execute pass: pull eligible candidates, score each,
// and execute in parallel up to the remaining position capacity. A failing
// candidate never aborts its siblings.
func (e *ExecutionEngine) RunCycle(ctx context.Context) {
	if e.State() != EngineActive {
		return
	}
	cfg := e.config()

	e.rolloverDailyStats()

	capacity := cfg.Trading.MaxPositions - e.positions.OpenCount()
	if capacity <= 0 {
		return
	}
	remainingDaily := cfg.Trading.MaxDailyTrades - e.dailyTrades()
	if remainingDaily <= 0 {
		e.logger.Debug("Daily trade ceiling reached, skipping cycle")
		return
	}
	if capacity > remainingDaily {
		capacity = remainingDaily
	}

	e.mu.Lock()
	source := e.targets
	e.mu.Unlock()
	if source == nil {
		return
	}

	targets, err := source.FetchReadyTargets(ctx, capacity*2)
	if err != nil {
		e.logger.Error("Failed to fetch ready targets", zap.Error(err))
		return
	}

	eligible := make([]*domain.SnipeTarget, 0, len(targets))
	seen := make(map[string]bool)
	for _, t := range targets {
		if t.Confidence < cfg.Trading.MinConfidence {
			continue
		}
		if !cfg.PatternAllowed(t.PatternType) {
			continue
		}
		if e.positions.HasOpen(t.Symbol) || seen[t.Symbol] {
			continue
		}
		seen[t.Symbol] = true
		eligible = append(eligible, t)
		if len(eligible) >= capacity {
			break
		}
	}
	if len(eligible) == 0 {
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, capacity)
	for _, t := range eligible {
		wg.Add(1)
		go func(t *domain.SnipeTarget) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			e.executeCandidate(ctx, source, t)
		}(t)
	}
	wg.Wait()
}

// executeCandidate scores one target and runs it through the processor,
// converting per-candidate errors into alerts at this boundary.
func (e *ExecutionEngine) executeCandidate(ctx context.Context, source TargetSource, target *domain.SnipeTarget) {
	assessment, err := e.risk.Assess(ctx, target, e.positions.OpenPositions())
	if err != nil {
		e.logger.Error("Risk assessment failed", zap.String("target", target.ID), zap.Error(err))
		return
	}

	switch assessment.Verdict {
	case domain.VerdictBlock:
		e.recordRiskBlocked()
		e.logger.Info("Trade blocked by risk assessment",
			zap.String("target", target.ID),
			zap.Float64("score", assessment.Score),
			zap.Strings("reasons", assessment.Reasons))
		return
	case domain.VerdictEmergencyStop:
		e.recordRiskBlocked()
		e.raiseAlert(domain.AlertRiskEmergency, domain.SeverityCritical,
			"risk assessment demands emergency stop: "+strings.Join(assessment.Reasons, "; "),
			target.Symbol, "")
		if err := e.Pause(); err != nil {
			e.logger.Error("Failed to pause engine on risk emergency", zap.Error(err))
		}
		return
	case domain.VerdictReduce:
		target.PositionSize = target.PositionSize / 2
		e.logger.Info("Reducing position size per risk verdict",
			zap.String("target", target.ID),
			zap.Float64("size", target.PositionSize))
	}

	if _, err := source.Process(ctx, target); err != nil {
		switch {
		case errors.Is(err, domain.ErrLockContention):
			e.logger.Debug("Target skipped, locked elsewhere", zap.String("target", target.ID))
		case errors.Is(err, domain.ErrCircuitOpen):
			e.logger.Warn("Target skipped, circuit open", zap.String("target", target.ID))
		default:
			e.logger.Error("Target execution failed",
				zap.String("target", target.ID),
				zap.String("symbol", target.Symbol),
				zap.Error(err))
		}
	}
}

// ExecuteTarget is the trade primitive: gate on the breaker, place a
// market buy, and hand the fill to the position manager.
func (e *ExecutionEngine) ExecuteTarget(ctx context.Context, target *domain.SnipeTarget) (*domain.TradeResult, error) {
	if e.breaker.IsOpen(ChannelTradeExecution) {
		return nil, domain.ErrCircuitOpen
	}
	cfg := e.config()

	var result *domain.TradeResult
	var err error
	if cfg.IsPaper() {
		result, err = e.paperBuy(ctx, target, cfg)
	} else {
		result, err = e.marketBuy(ctx, target, cfg)
	}
	if err != nil {
		e.breaker.RecordFailure(ChannelTradeExecution)
		e.recordTrade(nil, false)
		e.raiseAlert(domain.AlertTradeFailed, domain.SeverityError,
			fmt.Sprintf("buy %s failed: %v", target.Symbol, err), target.Symbol, "")
		return nil, err
	}

	e.breaker.RecordSuccess(ChannelTradeExecution)
	e.recordTrade(result, true)
	pos := e.positions.Track(result)
	e.raiseAlert(domain.AlertTradeExecuted, domain.SeverityInfo,
		fmt.Sprintf("sniped %s: qty %.6f at %.6f", result.Symbol, result.Quantity, result.Price),
		result.Symbol, pos.ID)
	return result, nil
}

func (e *ExecutionEngine) marketBuy(ctx context.Context, target *domain.SnipeTarget, cfg *config.Config) (*domain.TradeResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout())
	defer cancel()

	order, err := e.exchange.PlaceOrder(callCtx, &domain.Order{
		Symbol:      target.Symbol,
		Side:        domain.SideBuy,
		Type:        "MARKET",
		QuoteAmount: target.PositionSize,
	})
	if err != nil {
		return nil, &domain.ExchangeError{Op: "buy", Symbol: target.Symbol, Err: err}
	}
	return e.buildResult(target, order.OrderID, order.ExecutedQty, order.Price, order.Status, false), nil
}

// paperBuy simulates a fill at the live ticker price without touching the
// order endpoint.
func (e *ExecutionEngine) paperBuy(ctx context.Context, target *domain.SnipeTarget, cfg *config.Config) (*domain.TradeResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout())
	defer cancel()

	price, err := e.exchange.GetTickerPrice(callCtx, target.Symbol)
	if err != nil {
		return nil, &domain.ExchangeError{Op: "ticker", Symbol: target.Symbol, Err: err}
	}
	if price <= 0 {
		return nil, &domain.ExchangeError{Op: "ticker", Symbol: target.Symbol, Err: fmt.Errorf("non-positive price %v", price)}
	}
	qty := target.PositionSize / price
	return e.buildResult(target, "paper-"+uuid.NewString(), qty, price, "FILLED", true), nil
}

func (e *ExecutionEngine) buildResult(target *domain.SnipeTarget, orderID string, qty, price float64, status string, paper bool) *domain.TradeResult {
	return &domain.TradeResult{
		OrderID:       orderID,
		TargetID:      target.ID,
		Symbol:        target.Symbol,
		Side:          domain.SideBuy,
		Quantity:      qty,
		Price:         price,
		Status:        status,
		Strategy:      target.PatternType,
		Confidence:    target.Confidence,
		StopLossPct:   target.StopLossPct,
		TakeProfitPct: target.TakeProfitPct,
		AutoSniped:    true,
		PaperTrade:    paper,
		ExecutedAt:    e.clock.Now(),
	}
}

// ClosePosition closes one tracked position; the close event itself is
// alerted through the position manager's sink.
func (e *ExecutionEngine) ClosePosition(ctx context.Context, id, reason string) error {
	return e.positions.Close(ctx, id, reason)
}

// EmergencyCloseAll fans out closes to every open position concurrently,
// tolerating individual failures, and returns the count actually closed.
// Partial failure is summarized in exactly one critical alert.
func (e *ExecutionEngine) EmergencyCloseAll(ctx context.Context) int {
	ids := e.positions.OpenIDs()
	if len(ids) == 0 {
		return 0
	}

	var mu sync.Mutex
	var failures []string
	closed := 0

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := e.positions.Close(ctx, id, "emergency"); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", id, err))
				mu.Unlock()
				return
			}
			mu.Lock()
			closed++
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	e.logger.Warn("Emergency close-all finished",
		zap.Int("closed", closed),
		zap.Int("failed", len(failures)))

	if len(failures) > 0 {
		e.raiseAlert(domain.AlertEmergencyClose, domain.SeverityCritical,
			fmt.Sprintf("emergency close-all: %d closed, %d failed [%s]",
				closed, len(failures), strings.Join(failures, "; ")), "", "")
	}
	return closed
}

// Cleanup is the low-frequency housekeeping pass: trim buffers to their
// caps and migrate stale positions into history.
func (e *ExecutionEngine) Cleanup(ctx context.Context) {
	cfg := e.config()

	e.mu.Lock()
	if n := len(e.alerts); n > cfg.Safety.AlertBufferSize {
		e.alerts = e.alerts[n-cfg.Safety.AlertBufferSize:]
	}
	if n := len(e.tradeLog); n > cfg.Safety.HistorySize {
		e.tradeLog = e.tradeLog[n-cfg.Safety.HistorySize:]
	}
	e.mu.Unlock()

	if migrated := e.positions.MigrateStale(cfg.StaleAfter()); migrated > 0 {
		e.raiseAlert(domain.AlertStalePosition, domain.SeverityWarning,
			fmt.Sprintf("migrated %d stale positions to history", migrated), "", "")
	}

	e.rolloverDailyStats()
}

// Alerts returns a copy of the alert buffer, oldest first.
func (e *ExecutionEngine) Alerts() []*domain.ExecutionAlert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.ExecutionAlert, 0, len(e.alerts))
	for _, a := range e.alerts {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

func (e *ExecutionEngine) AcknowledgeAlert(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range e.alerts {
		if a.ID == id {
			a.Acknowledged = true
			return nil
		}
	}
	return fmt.Errorf("no alert with id %s", id)
}

func (e *ExecutionEngine) Stats() domain.ExecutionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// TradeLog returns a copy of the bounded execution history.
func (e *ExecutionEngine) TradeLog() []*domain.TradeResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.TradeResult, 0, len(e.tradeLog))
	for _, r := range e.tradeLog {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

func (e *ExecutionEngine) raiseAlert(typ domain.AlertType, severity domain.AlertSeverity, msg, symbol, positionID string) {
	alert := &domain.ExecutionAlert{
		ID:         uuid.NewString(),
		Type:       typ,
		Severity:   severity,
		Message:    msg,
		Symbol:     symbol,
		PositionID: positionID,
		Timestamp:  e.clock.Now(),
	}

	e.mu.Lock()
	limit := e.cfg.Safety.AlertBufferSize
	e.alerts = append(e.alerts, alert)
	if limit > 0 && len(e.alerts) > limit {
		e.alerts = e.alerts[len(e.alerts)-limit:]
	}
	sink := e.sink
	e.mu.Unlock()

	switch severity {
	case domain.SeverityCritical, domain.SeverityError:
		e.logger.Error("Alert raised", zap.String("type", string(typ)), zap.String("message", msg))
	case domain.SeverityWarning:
		e.logger.Warn("Alert raised", zap.String("type", string(typ)), zap.String("message", msg))
	default:
		e.logger.Info("Alert raised", zap.String("type", string(typ)), zap.String("message", msg))
	}

	if sink != nil {
		sink.Notify(alert)
	}
}

func (e *ExecutionEngine) recordTrade(result *domain.TradeResult, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.TotalTrades++
	if success {
		e.stats.SuccessfulTrades++
		e.stats.DailyTrades++
		if result != nil {
			e.stats.TotalVolume += result.Quantity * result.Price
			e.tradeLog = append(e.tradeLog, result)
			if limit := e.cfg.Safety.HistorySize; limit > 0 && len(e.tradeLog) > limit {
				e.tradeLog = e.tradeLog[len(e.tradeLog)-limit:]
			}
		}
	} else {
		e.stats.FailedTrades++
	}
}

func (e *ExecutionEngine) recordRiskBlocked() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.RiskBlocked++
}

func (e *ExecutionEngine) dailyTrades() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.DailyTrades
}

// rolloverDailyStats resets the daily counter at the day boundary.
func (e *ExecutionEngine) rolloverDailyStats() {
	day := e.clock.Now().Format("2006-01-02")
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.statsDay != day {
		e.statsDay = day
		e.stats.DailyTrades = 0
	}
}
