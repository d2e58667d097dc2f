package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RyanLisse/mexc-sniper-bot/internal/config"
	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
	"go.uber.org/zap"
)

// StatusReport is the snapshot returned by GetStatus.
type StatusReport struct {
	Running       bool                     `json:"running"`
	Paused        bool                     `json:"paused"`
	EngineState   EngineState              `json:"engine_state"`
	Mode          string                   `json:"mode"`
	OpenPositions int                      `json:"open_positions"`
	Stats         domain.ExecutionStats    `json:"stats"`
	Breakers      map[string]BreakerStatus `json:"breakers"`
}

// FullReport merges metrics from every component for GetReport.
type FullReport struct {
	Status      StatusReport              `json:"status"`
	Positions   []*domain.Position        `json:"positions"`
	History     []*domain.Position        `json:"history"`
	Portfolio   domain.PortfolioRisk      `json:"portfolio"`
	Performance domain.PerformanceMetrics `json:"performance"`
	Alerts      []*domain.ExecutionAlert  `json:"alerts"`
	TradeLog    []*domain.TradeResult     `json:"trade_log"`
}

// Orchestrator is the top-level coordinator: it owns the configuration,
// runs the periodic cycles, and exposes the public control surface. Every
// public operation returns a structured OperationResult, never a raw error.
type Orchestrator struct {
	engine    *ExecutionEngine
	processor *TargetProcessor
	positions *PositionManager
	breaker   *CircuitBreaker
	risk      *RiskAssessor
	clock     domain.Clock
	logger    *zap.Logger

	mu      sync.Mutex
	cfg     *config.Config
	running bool
	paused  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewOrchestrator(
	cfg *config.Config,
	engine *ExecutionEngine,
	processor *TargetProcessor,
	positions *PositionManager,
	breaker *CircuitBreaker,
	risk *RiskAssessor,
	clock domain.Clock,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		engine:    engine,
		processor: processor,
		positions: positions,
		breaker:   breaker,
		risk:      risk,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start brings the engine up and launches the scan, monitor, and cleanup
// loops. A failed start leaves everything in its prior state.
func (o *Orchestrator) Start() domain.OperationResult {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return domain.Fail(errors.New("orchestrator already running"))
	}
	cfg := o.cfg
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	if err := o.engine.Start(ctx); err != nil {
		cancel()
		return domain.Fail(err)
	}

	o.mu.Lock()
	o.running = true
	o.paused = false
	o.cancel = cancel
	o.mu.Unlock()

	o.startLoop(ctx, "scan", cfg.ScanInterval(), o.engine.RunCycle)
	o.startLoop(ctx, "monitor", cfg.MonitorInterval(), o.positions.RefreshAll)
	o.startLoop(ctx, "cleanup", cfg.CleanupInterval(), o.engine.Cleanup)

	o.logger.Info("Orchestrator started",
		zap.Duration("scan_interval", cfg.ScanInterval()),
		zap.Duration("monitor_interval", cfg.MonitorInterval()),
		zap.Duration("cleanup_interval", cfg.CleanupInterval()))
	return domain.OK(nil)
}

// startLoop runs one periodic cycle until the context is cancelled. Cycle
// work in flight when Stop is called finishes before the loop returns,
// because cancellation is only observed between cycles.
func (o *Orchestrator) startLoop(ctx context.Context, name string, interval time.Duration, cycle func(context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				o.logger.Debug("Cycle loop stopped", zap.String("loop", name))
				return
			case <-ticker.C:
				if o.isPaused() {
					continue
				}
				cycle(ctx)
			}
		}
	}()
}

func (o *Orchestrator) isPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// Stop cancels the loops, waits for in-flight cycle work to finish, then
// shuts the engine down.
func (o *Orchestrator) Stop() domain.OperationResult {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return domain.Fail(errors.New("orchestrator not running"))
	}
	cancel := o.cancel
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	o.engine.Stop()

	o.mu.Lock()
	o.running = false
	o.paused = false
	o.cancel = nil
	o.mu.Unlock()

	o.logger.Info("Orchestrator stopped")
	return domain.OK(nil)
}

// Pause suppresses new cycle starts without clearing in-memory state;
// positions remain tracked.
func (o *Orchestrator) Pause() domain.OperationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return domain.Fail(errors.New("orchestrator not running"))
	}
	if o.paused {
		return domain.Fail(errors.New("orchestrator already paused"))
	}
	if err := o.engine.Pause(); err != nil {
		return domain.Fail(err)
	}
	o.paused = true
	o.logger.Info("Orchestrator paused")
	return domain.OK(nil)
}

// Resume re-validates pre-flight conditions before cycles run again.
func (o *Orchestrator) Resume(ctx context.Context) domain.OperationResult {
	o.mu.Lock()
	if !o.running || !o.paused {
		o.mu.Unlock()
		return domain.Fail(errors.New("orchestrator not paused"))
	}
	o.mu.Unlock()

	if err := o.engine.Resume(ctx); err != nil {
		return domain.Fail(err)
	}

	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
	o.logger.Info("Orchestrator resumed")
	return domain.OK(nil)
}

// UpdateConfig validates and applies a new configuration atomically:
// either the whole update applies or none of it does. Interval changes
// take effect on the next Start.
func (o *Orchestrator) UpdateConfig(cfg *config.Config) domain.OperationResult {
	if cfg == nil {
		return domain.Fail(errors.New("nil config"))
	}
	if err := cfg.Validate(); err != nil {
		return domain.Fail(fmt.Errorf("config rejected: %w", err))
	}

	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()

	o.engine.Reconfigure(cfg)
	o.risk.Reconfigure(cfg.Trading.MaxPositions, cfg.Trading.PositionSize, cfg.Trading.MaxDrawdownPct)

	o.logger.Info("Configuration updated",
		zap.String("mode", cfg.Trading.Mode),
		zap.Int("max_positions", cfg.Trading.MaxPositions),
		zap.Float64("min_confidence", cfg.Trading.MinConfidence))
	return domain.OK(nil)
}

func (o *Orchestrator) Config() *config.Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

func (o *Orchestrator) GetStatus() domain.OperationResult {
	return domain.OK(o.status())
}

func (o *Orchestrator) status() StatusReport {
	o.mu.Lock()
	running, paused, cfg := o.running, o.paused, o.cfg
	o.mu.Unlock()

	return StatusReport{
		Running:       running,
		Paused:        paused,
		EngineState:   o.engine.State(),
		Mode:          cfg.Trading.Mode,
		OpenPositions: o.positions.OpenCount(),
		Stats:         o.engine.Stats(),
		Breakers:      o.breaker.Status(),
	}
}

// GetReport merges metrics from all components.
func (o *Orchestrator) GetReport() domain.OperationResult {
	return domain.OK(FullReport{
		Status:      o.status(),
		Positions:   o.positions.OpenPositions(),
		History:     o.positions.History(),
		Portfolio:   o.positions.Portfolio(),
		Performance: o.positions.Performance(),
		Alerts:      o.engine.Alerts(),
		TradeLog:    o.engine.TradeLog(),
	})
}

func (o *Orchestrator) AcknowledgeAlert(id string) domain.OperationResult {
	if err := o.engine.AcknowledgeAlert(id); err != nil {
		return domain.Fail(err)
	}
	return domain.OK(nil)
}

// ClosePosition closes one position on operator request.
func (o *Orchestrator) ClosePosition(ctx context.Context, id, reason string) domain.OperationResult {
	if err := o.engine.ClosePosition(ctx, id, reason); err != nil {
		return domain.Fail(err)
	}
	return domain.OK(nil)
}

// EmergencyCloseAll closes every open position, reporting the count that
// actually closed.
func (o *Orchestrator) EmergencyCloseAll(ctx context.Context) domain.OperationResult {
	closed := o.engine.EmergencyCloseAll(ctx)
	return domain.OK(map[string]int{"closed": closed})
}
