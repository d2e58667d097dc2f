package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
	"go.uber.org/zap"
)

const refreshConcurrency = 10

// trackedPosition serializes all mutation of one position. Price refresh,
// trigger evaluation, and explicit close for a given id always take this
// mutex, so the monitor sweep and a concurrent close call cannot interleave.
type trackedPosition struct {
	mu          sync.Mutex
	pos         *domain.Position
	lastTouched time.Time
}

// PositionManager owns the in-memory set of open positions for their whole
// open lifetime. Closed positions move into an append-only capped history
// and are never mutated after the move.
type PositionManager struct {
	exchange domain.Exchange
	store    domain.PositionStore // optional persistence across restarts
	vol      *VolatilityEstimator
	clock    domain.Clock
	logger   *zap.Logger

	mu         sync.RWMutex
	active     map[string]*trackedPosition
	closed     []*domain.Position
	historyCap int
	portfolio  domain.PortfolioRisk

	callTimeout time.Duration

	// paperFill simulates an exit fill in paper mode. Injectable so tests
	// get deterministic results.
	paperFill func(entry float64) float64

	// onClose is the caller-supplied sink for close events.
	onClose func(pos *domain.Position, reason string)
}

func NewPositionManager(exchange domain.Exchange, store domain.PositionStore, historyCap int, callTimeout time.Duration, clock domain.Clock, logger *zap.Logger) *PositionManager {
	return &PositionManager{
		exchange:    exchange,
		store:       store,
		vol:         NewVolatilityEstimator(),
		clock:       clock,
		logger:      logger,
		active:      make(map[string]*trackedPosition),
		historyCap:  historyCap,
		callTimeout: callTimeout,
		paperFill:   defaultPaperFill,
	}
}

// priceStreamer is the optional streaming side of an exchange adapter.
// Tracked symbols get subscribed so monitor sweeps hit the price cache.
type priceStreamer interface {
	Subscribe(symbols []string) error
}

func (m *PositionManager) subscribeStream(symbols []string) {
	ps, ok := m.exchange.(priceStreamer)
	if !ok || len(symbols) == 0 {
		return
	}
	if err := ps.Subscribe(symbols); err != nil {
		m.logger.Warn("Price stream subscription failed", zap.Strings("symbols", symbols), zap.Error(err))
	}
}

// defaultPaperFill perturbs the entry price a little to mimic slippage.
func defaultPaperFill(entry float64) float64 {
	return entry * (1 + (rand.Float64()-0.5)*0.002)
}

// SetPaperFill replaces the paper-mode exit simulation.
func (m *PositionManager) SetPaperFill(fn func(entry float64) float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn != nil {
		m.paperFill = fn
	}
}

// OnClose registers the close-event sink.
func (m *PositionManager) OnClose(fn func(pos *domain.Position, reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = fn
}

// SetHistoryCap applies an updated history bound.
func (m *PositionManager) SetHistoryCap(limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > 0 {
		m.historyCap = limit
		m.trimHistoryLocked()
	}
}

// Track begins managing a position built from a filled buy. Auto-sniped
// trades get default risk bounds (stop-loss 10%, take-profit 20%) when the
// source did not carry explicit values.
func (m *PositionManager) Track(result *domain.TradeResult) *domain.Position {
	slPct := result.StopLossPct
	tpPct := result.TakeProfitPct
	if result.AutoSniped {
		if slPct <= 0 {
			slPct = 10
		}
		if tpPct <= 0 {
			tpPct = 20
		}
	}

	now := m.clock.Now()
	pos := &domain.Position{
		ID:           result.OrderID,
		Symbol:       result.Symbol,
		Side:         result.Side,
		Quantity:     result.Quantity,
		EntryPrice:   result.Price,
		CurrentPrice: result.Price,
		Status:       domain.PositionOpen,
		OpenedAt:     now,
		Strategy:     result.Strategy,
		Confidence:   result.Confidence,
		AutoSniped:   result.AutoSniped,
		PaperTrade:   result.PaperTrade,
	}
	if slPct > 0 {
		pos.StopLossPrice = result.Price * (1 - slPct/100)
	}
	if tpPct > 0 {
		pos.TakeProfitPrice = result.Price * (1 + tpPct/100)
	}

	m.mu.Lock()
	m.active[pos.ID] = &trackedPosition{pos: pos, lastTouched: now}
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveOpenPosition(context.Background(), pos); err != nil {
			m.logger.Error("Failed to persist open position", zap.String("id", pos.ID), zap.Error(err))
		}
	}
	m.subscribeStream([]string{pos.Symbol})

	m.logger.Info("Tracking new position",
		zap.String("id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("stop_loss", pos.StopLossPrice),
		zap.Float64("take_profit", pos.TakeProfitPrice),
		zap.Bool("paper", pos.PaperTrade))

	return pos
}

func (m *PositionManager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// HasOpen reports whether an open position exists for the symbol.
func (m *PositionManager) HasOpen(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tp := range m.active {
		if tp.pos.Symbol == symbol {
			return true
		}
	}
	return false
}

// OpenPositions returns copies of all open positions.
func (m *PositionManager) OpenPositions() []*domain.Position {
	m.mu.RLock()
	tracked := make([]*trackedPosition, 0, len(m.active))
	for _, tp := range m.active {
		tracked = append(tracked, tp)
	}
	m.mu.RUnlock()

	out := make([]*domain.Position, 0, len(tracked))
	for _, tp := range tracked {
		tp.mu.Lock()
		cp := *tp.pos
		tp.mu.Unlock()
		out = append(out, &cp)
	}
	return out
}

// OpenIDs returns the ids of all open positions.
func (m *PositionManager) OpenIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// History returns copies of closed positions, newest last.
func (m *PositionManager) History() []*domain.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Position, 0, len(m.closed))
	for _, p := range m.closed {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Portfolio returns the aggregates from the last RefreshAll sweep.
func (m *PositionManager) Portfolio() domain.PortfolioRisk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.portfolio
}

// RefreshAll refreshes every open position with bounded parallelism:
// current price, P&L, risk metrics, then stop-loss/take-profit triggers.
// A failing position never blocks or fails its siblings. Portfolio
// aggregates are recomputed once at the end of the sweep.
func (m *PositionManager) RefreshAll(ctx context.Context) {
	m.mu.RLock()
	tracked := make([]*trackedPosition, 0, len(m.active))
	for _, tp := range m.active {
		tracked = append(tracked, tp)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, refreshConcurrency)

	for _, tp := range tracked {
		wg.Add(1)
		go func(tp *trackedPosition) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := m.refreshOne(ctx, tp); err != nil {
				m.logger.Error("Position refresh failed",
					zap.String("id", tp.pos.ID),
					zap.String("symbol", tp.pos.Symbol),
					zap.Error(err))
			}
		}(tp)
	}
	wg.Wait()

	m.recomputePortfolio()
}

func (m *PositionManager) refreshOne(ctx context.Context, tp *trackedPosition) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.pos.Status != domain.PositionOpen {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	price, err := m.exchange.GetTickerPrice(callCtx, tp.pos.Symbol)
	cancel()
	if err != nil {
		return &domain.ExchangeError{Op: "ticker", Symbol: tp.pos.Symbol, Err: err}
	}
	if price <= 0 {
		return &domain.ExchangeError{Op: "ticker", Symbol: tp.pos.Symbol, Err: fmt.Errorf("non-positive price %v", price)}
	}

	pos := tp.pos
	pos.CurrentPrice = price
	pos.UnrealizedPnL = (price - pos.EntryPrice) * pos.Quantity
	if pos.EntryPrice > 0 {
		pos.PnLPercent = (price - pos.EntryPrice) / pos.EntryPrice * 100
	}
	if pos.PnLPercent > pos.Risk.MaxFavorableExcursion {
		pos.Risk.MaxFavorableExcursion = pos.PnLPercent
	}
	if pos.PnLPercent < pos.Risk.MaxAdverseExcursion {
		pos.Risk.MaxAdverseExcursion = pos.PnLPercent
	}

	vol := m.vol.Observe(pos.Symbol, price)
	pos.Risk.Volatility = vol
	pos.Risk.Beta = m.vol.Beta(pos.Symbol)
	pos.Risk.ValueAtRisk = ValueAtRisk(pos.Value(), vol)
	pos.Risk.ExpectedShortfall = ExpectedShortfall(pos.Risk.ValueAtRisk)
	pos.Risk.SharpeRatio = SharpeRatio(pos.PnLPercent, vol, m.clock.Now().Sub(pos.OpenedAt))

	tp.lastTouched = m.clock.Now()

	// Trigger evaluation: at most one fires per refresh, stop-loss first.
	if pos.StopLossPrice > 0 && price <= pos.StopLossPrice {
		return m.closeLocked(ctx, tp, "stop-loss")
	}
	if pos.TakeProfitPrice > 0 && price >= pos.TakeProfitPrice {
		return m.closeLocked(ctx, tp, "take-profit")
	}
	return nil
}

// Close closes one open position by id. The error is propagated to the
// caller; on failure the position stays open and tracked.
func (m *PositionManager) Close(ctx context.Context, id, reason string) error {
	m.mu.RLock()
	tp, ok := m.active[id]
	m.mu.RUnlock()
	if !ok {
		return &domain.ValidationError{Field: "position", Reason: "no open position with id " + id}
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()
	if tp.pos.Status != domain.PositionOpen {
		return nil // closed by the monitor sweep between lookup and lock
	}
	return m.closeLocked(ctx, tp, reason)
}

// closeLocked performs the close while holding the per-position mutex.
// Paper trades realize P&L from the simulated fill; real trades place an
// opposite-side market order and realize from the reported fill price.
func (m *PositionManager) closeLocked(ctx context.Context, tp *trackedPosition, reason string) error {
	pos := tp.pos

	var exitPrice float64
	if pos.PaperTrade {
		m.mu.RLock()
		fill := m.paperFill
		m.mu.RUnlock()
		exitPrice = fill(pos.CurrentPrice)
	} else {
		callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
		result, err := m.exchange.PlaceOrder(callCtx, &domain.Order{
			Symbol:   pos.Symbol,
			Side:     oppositeSide(pos.Side),
			Type:     "MARKET",
			Quantity: pos.Quantity,
		})
		cancel()
		if err != nil {
			m.logger.Error("Close order failed",
				zap.String("id", pos.ID),
				zap.String("symbol", pos.Symbol),
				zap.String("reason", reason),
				zap.Error(err))
			return &domain.ExchangeError{Op: "close", Symbol: pos.Symbol, Err: err}
		}
		exitPrice = result.Price
		if exitPrice <= 0 {
			exitPrice = pos.CurrentPrice
		}
	}

	now := m.clock.Now()
	pos.CurrentPrice = exitPrice
	pos.RealizedPnL = (exitPrice - pos.EntryPrice) * pos.Quantity
	if pos.EntryPrice > 0 {
		pos.PnLPercent = (exitPrice - pos.EntryPrice) / pos.EntryPrice * 100
	}
	pos.UnrealizedPnL = 0
	pos.Status = domain.PositionClosed
	pos.ClosedAt = &now
	pos.ExitReason = reason

	m.mu.Lock()
	delete(m.active, pos.ID)
	m.closed = append(m.closed, pos)
	m.trimHistoryLocked()
	onClose := m.onClose
	m.mu.Unlock()

	m.logger.Info("Position closed",
		zap.String("id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.String("reason", reason),
		zap.Float64("exit", exitPrice),
		zap.Float64("realized_pnl", pos.RealizedPnL))

	if m.store != nil {
		if err := m.store.DeleteOpenPosition(ctx, pos.ID); err != nil {
			m.logger.Error("Failed to delete persisted open position", zap.String("id", pos.ID), zap.Error(err))
		}
		if err := m.store.SaveClosedPosition(ctx, pos); err != nil {
			m.logger.Error("Failed to persist closed position", zap.String("id", pos.ID), zap.Error(err))
		}
	}
	if onClose != nil {
		onClose(pos, reason)
	}
	return nil
}

// Restore reloads persisted open positions after a restart. Restored
// positions rejoin the active set and are refreshed on the next monitor
// sweep.
func (m *PositionManager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	persisted, err := m.store.ListOpenPositions(ctx)
	if err != nil {
		return 0, err
	}

	now := m.clock.Now()
	symbols := make([]string, 0, len(persisted))
	m.mu.Lock()
	for _, pos := range persisted {
		if _, exists := m.active[pos.ID]; exists {
			continue
		}
		m.active[pos.ID] = &trackedPosition{pos: pos, lastTouched: now}
		symbols = append(symbols, pos.Symbol)
	}
	m.mu.Unlock()
	m.subscribeStream(symbols)

	if len(persisted) > 0 {
		m.logger.Info("Restored open positions from store", zap.Int("count", len(persisted)))
	}
	return len(persisted), nil
}

// MigrateStale moves positions untouched for longer than the threshold
// into history as closed. Required housekeeping so long uptimes cannot
// grow the active set without bound.
func (m *PositionManager) MigrateStale(threshold time.Duration) int {
	m.mu.RLock()
	tracked := make([]*trackedPosition, 0, len(m.active))
	for _, tp := range m.active {
		tracked = append(tracked, tp)
	}
	m.mu.RUnlock()

	cutoff := m.clock.Now().Add(-threshold)
	migrated := 0
	for _, tp := range tracked {
		tp.mu.Lock()
		if tp.pos.Status == domain.PositionOpen && tp.lastTouched.Before(cutoff) {
			pos := tp.pos
			now := m.clock.Now()
			pos.RealizedPnL = (pos.CurrentPrice - pos.EntryPrice) * pos.Quantity
			pos.Status = domain.PositionClosed
			pos.ClosedAt = &now
			pos.ExitReason = "stale"

			m.mu.Lock()
			delete(m.active, pos.ID)
			m.closed = append(m.closed, pos)
			m.trimHistoryLocked()
			m.mu.Unlock()

			if m.store != nil {
				ctx := context.Background()
				if err := m.store.DeleteOpenPosition(ctx, pos.ID); err != nil {
					m.logger.Error("Failed to delete persisted open position", zap.String("id", pos.ID), zap.Error(err))
				}
				if err := m.store.SaveClosedPosition(ctx, pos); err != nil {
					m.logger.Error("Failed to persist closed position", zap.String("id", pos.ID), zap.Error(err))
				}
			}

			m.logger.Warn("Migrated stale position to history",
				zap.String("id", pos.ID),
				zap.String("symbol", pos.Symbol),
				zap.Time("last_touched", tp.lastTouched))
			migrated++
		}
		tp.mu.Unlock()
	}
	return migrated
}

// Performance derives metrics from closed-position history.
func (m *PositionManager) Performance() domain.PerformanceMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	perf := domain.PerformanceMetrics{ClosedPositions: len(m.closed)}
	for i, p := range m.closed {
		perf.RealizedPnL += p.RealizedPnL
		if p.RealizedPnL > 0 {
			perf.WinCount++
		} else if p.RealizedPnL < 0 {
			perf.LossCount++
		}
		if i == 0 || p.RealizedPnL > perf.BestTrade {
			perf.BestTrade = p.RealizedPnL
		}
		if i == 0 || p.RealizedPnL < perf.WorstTrade {
			perf.WorstTrade = p.RealizedPnL
		}
	}
	if perf.ClosedPositions > 0 {
		perf.WinRate = float64(perf.WinCount) / float64(perf.ClosedPositions) * 100
		perf.AveragePnL = perf.RealizedPnL / float64(perf.ClosedPositions)
	}
	return perf
}

// recomputePortfolio rebuilds the portfolio aggregates once per sweep.
func (m *PositionManager) recomputePortfolio() {
	open := m.OpenPositions()

	var risk domain.PortfolioRisk
	for _, p := range open {
		risk.TotalValue += p.Value()
		risk.UnrealizedPnL += p.UnrealizedPnL
	}

	if risk.TotalValue > 0 {
		// Herfindahl index over position value shares.
		for _, p := range open {
			share := p.Value() / risk.TotalValue
			risk.ConcentrationRisk += share * share
		}
	}

	if len(open) > 1 {
		var sum float64
		var pairs int
		for i := 0; i < len(open); i++ {
			for j := i + 1; j < len(open); j++ {
				sum += m.vol.Correlation(open[i].Symbol, open[j].Symbol)
				pairs++
			}
		}
		risk.CorrelationRisk = sum / float64(pairs)
	}

	m.mu.Lock()
	m.portfolio = risk
	m.mu.Unlock()
}

func (m *PositionManager) trimHistoryLocked() {
	if m.historyCap > 0 && len(m.closed) > m.historyCap {
		// FIFO eviction: oldest entries go first.
		m.closed = m.closed[len(m.closed)-m.historyCap:]
	}
}

func oppositeSide(s domain.Side) domain.Side {
	if s == domain.SideBuy {
		return domain.SideSell
	}
	return domain.SideBuy
}
