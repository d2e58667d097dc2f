package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
	"github.com/RyanLisse/mexc-sniper-bot/internal/usecase"
)

func TestEngine_StartFailsWhenTradingDisabled(t *testing.T) {
	cfg := newTestConfig()
	cfg.Trading.Enabled = false
	h := newHarness(cfg)

	if err := h.engine.Start(context.Background()); err == nil {
		t.Fatal("start succeeded with trading disabled")
	}
	if h.engine.State() != usecase.EngineIdle {
		t.Errorf("state = %s, want idle", h.engine.State())
	}
}

func TestEngine_StartBlockedOnCriticalHealth(t *testing.T) {
	h := newHarness(newTestConfig())
	h.probe.SetStatus(domain.HealthCritical)

	err := h.engine.Start(context.Background())
	var serr *domain.CriticalSafetyError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want CriticalSafetyError", err)
	}
	if h.engine.State() != usecase.EngineIdle {
		t.Errorf("state = %s, want idle after failed start", h.engine.State())
	}
}

func TestEngine_StartFailsOnExchangeProbe(t *testing.T) {
	h := newHarness(newTestConfig())
	h.exchange.BalancesErr = errors.New("401 unauthorized")

	err := h.engine.Start(context.Background())
	var xerr *domain.ExchangeError
	if !errors.As(err, &xerr) {
		t.Fatalf("err = %v, want ExchangeError", err)
	}
}

func TestEngine_ConfidenceGate(t *testing.T) {
	h := newHarness(newTestConfig()) // min confidence 75
	h.start(t)

	h.exchange.SetPrice("HIGHUSDT", 10)
	h.exchange.SetPrice("LOWUSDT", 10)
	h.store.Targets = []*domain.SnipeTarget{
		readyTarget("low", "LOWUSDT", 60),
		readyTarget("high", "HIGHUSDT", 90),
	}

	h.engine.RunCycle(context.Background())

	if h.positions.OpenCount() != 1 {
		t.Fatalf("open count = %d, want 1", h.positions.OpenCount())
	}
	if !h.positions.HasOpen("HIGHUSDT") {
		t.Error("qualifying target not executed")
	}
	if got := h.store.UpdatesFor("low"); len(got) != 0 {
		t.Errorf("below-threshold target saw transitions %v, want none", got)
	}
	if got := h.store.UpdatesFor("high"); len(got) != 2 ||
		got[0] != domain.TargetExecuting || got[1] != domain.TargetCompleted {
		t.Errorf("high target transitions = %v, want [executing completed]", got)
	}
}

func TestEngine_PatternFilter(t *testing.T) {
	cfg := newTestConfig()
	cfg.Trading.AllowedPatterns = []string{"breakout"}
	h := newHarness(cfg)
	h.start(t)

	h.exchange.SetPrice("AAAUSDT", 10)
	h.exchange.SetPrice("BBBUSDT", 10)
	allowed := readyTarget("t1", "AAAUSDT", 90)
	allowed.PatternType = "breakout"
	denied := readyTarget("t2", "BBBUSDT", 90)
	denied.PatternType = "mean_reversion"
	h.store.Targets = []*domain.SnipeTarget{allowed, denied}

	h.engine.RunCycle(context.Background())

	if !h.positions.HasOpen("AAAUSDT") || h.positions.HasOpen("BBBUSDT") {
		t.Errorf("pattern filter violated, open: %v", h.positions.OpenPositions())
	}
}

func TestEngine_CapacityCeiling(t *testing.T) {
	cfg := newTestConfig()
	cfg.Trading.MaxPositions = 2
	h := newHarness(cfg)
	h.start(t)

	for i := 0; i < 4; i++ {
		symbol := fmt.Sprintf("S%dUSDT", i)
		h.exchange.SetPrice(symbol, 10)
		h.store.Targets = append(h.store.Targets, readyTarget(fmt.Sprintf("t%d", i), symbol, 90))
	}

	h.engine.RunCycle(context.Background())

	if h.positions.OpenCount() != 2 {
		t.Errorf("open count = %d, want 2 (position ceiling)", h.positions.OpenCount())
	}

	// A second cycle at capacity executes nothing.
	h.engine.RunCycle(context.Background())
	if h.positions.OpenCount() != 2 {
		t.Errorf("open count = %d after full cycle, want 2", h.positions.OpenCount())
	}
}

func TestEngine_DailyTradeCeiling(t *testing.T) {
	cfg := newTestConfig()
	cfg.Trading.MaxDailyTrades = 1
	h := newHarness(cfg)
	h.start(t)

	h.exchange.SetPrice("AAAUSDT", 10)
	h.exchange.SetPrice("BBBUSDT", 10)
	h.store.Targets = []*domain.SnipeTarget{
		readyTarget("t1", "AAAUSDT", 90),
		readyTarget("t2", "BBBUSDT", 90),
	}

	h.engine.RunCycle(context.Background())
	h.engine.RunCycle(context.Background())
	if h.positions.OpenCount() != 1 {
		t.Fatalf("open count = %d, want 1 (daily ceiling)", h.positions.OpenCount())
	}

	// The counter rolls over at the day boundary.
	h.clock.Advance(24 * time.Hour)
	h.engine.RunCycle(context.Background())
	if h.positions.OpenCount() != 2 {
		t.Errorf("open count = %d after rollover, want 2", h.positions.OpenCount())
	}
}

func TestEngine_CircuitOpenShortCircuits(t *testing.T) {
	h := newHarness(newTestConfig())
	h.start(t)

	for i := 0; i < h.cfg.Safety.CircuitThreshold; i++ {
		h.breaker.RecordFailure(usecase.ChannelTradeExecution)
	}
	before := h.exchange.TickerCalls()

	_, err := h.engine.ExecuteTarget(context.Background(), readyTarget("t1", "AAAUSDT", 90))
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if h.exchange.TickerCalls() != before {
		t.Error("exchange touched while circuit open")
	}
}

func TestEngine_ExecuteTargetFailure(t *testing.T) {
	h := newHarness(newTestConfig())
	h.start(t)
	// No price for the symbol, so the paper buy fails.

	_, err := h.engine.ExecuteTarget(context.Background(), readyTarget("t1", "NOPEUSDT", 90))
	var xerr *domain.ExchangeError
	if !errors.As(err, &xerr) {
		t.Fatalf("err = %v, want ExchangeError", err)
	}

	stats := h.engine.Stats()
	if stats.FailedTrades != 1 || stats.SuccessfulTrades != 0 {
		t.Errorf("stats = %+v, want 1 failed", stats)
	}
	if st := h.breaker.Status()[usecase.ChannelTradeExecution]; st.Failures != 1 {
		t.Errorf("breaker failures = %d, want 1", st.Failures)
	}
	if !hasAlert(h.engine.Alerts(), domain.AlertTradeFailed) {
		t.Error("no trade_failed alert raised")
	}
}

func TestEngine_ExecuteTargetPaperFill(t *testing.T) {
	h := newHarness(newTestConfig())
	h.start(t)
	h.exchange.SetPrice("AAAUSDT", 25)

	result, err := h.engine.ExecuteTarget(context.Background(), readyTarget("t1", "AAAUSDT", 90))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.PaperTrade {
		t.Error("default mode must produce paper trades")
	}
	if result.Quantity != 4 { // 100 quote / 25
		t.Errorf("quantity = %v, want 4", result.Quantity)
	}
	if h.exchange.OrderCount() != 0 {
		t.Error("paper trade must not reach the order endpoint")
	}
	if h.positions.OpenCount() != 1 {
		t.Error("fill not handed to position manager")
	}
	if len(h.engine.TradeLog()) != 1 {
		t.Error("trade missing from trade log")
	}
}

func TestEngine_RiskEmergencyPausesEngine(t *testing.T) {
	cfg := newTestConfig()
	cfg.Trading.MaxDrawdownPct = 10
	h := newHarness(cfg)
	h.start(t)

	// Deep underwater book: 25% drawdown against a 10% ceiling.
	held := paperBuyResult("p1", "DOWNUSDT", 1, 100, 0, 0)
	held.AutoSniped = false
	h.positions.Track(held)
	h.exchange.SetPrice("DOWNUSDT", 80)
	h.positions.RefreshAll(context.Background())

	h.exchange.SetPrice("NEWUSDT", 10)
	h.store.Targets = []*domain.SnipeTarget{readyTarget("t1", "NEWUSDT", 95)}

	h.engine.RunCycle(context.Background())

	if h.engine.State() != usecase.EnginePaused {
		t.Fatalf("state = %s, want paused after risk emergency", h.engine.State())
	}
	if h.positions.OpenCount() != 1 {
		t.Error("candidate executed despite emergency verdict")
	}
	if h.engine.Stats().RiskBlocked != 1 {
		t.Errorf("risk blocked = %d, want 1", h.engine.Stats().RiskBlocked)
	}
	if !hasAlert(h.engine.Alerts(), domain.AlertRiskEmergency) {
		t.Error("no risk_emergency alert raised")
	}
}

func TestEngine_EmergencyCloseAllPartialFailure(t *testing.T) {
	h := newHarness(newTestConfig())
	h.start(t)

	for i := 0; i < 3; i++ {
		h.positions.Track(paperBuyResult(fmt.Sprintf("paper%d", i), fmt.Sprintf("P%dUSDT", i), 1, 100, 0, 0))
	}
	for i := 0; i < 2; i++ {
		symbol := fmt.Sprintf("R%dUSDT", i)
		result := paperBuyResult(fmt.Sprintf("real%d", i), symbol, 1, 100, 0, 0)
		result.PaperTrade = false
		h.positions.Track(result)
		h.exchange.CloseFails[symbol] = true
	}

	closed := h.engine.EmergencyCloseAll(context.Background())

	if closed != 3 {
		t.Errorf("closed = %d, want 3", closed)
	}
	if h.positions.OpenCount() != 2 {
		t.Errorf("open count = %d, want 2 survivors", h.positions.OpenCount())
	}

	criticals := 0
	for _, a := range h.engine.Alerts() {
		if a.Type == domain.AlertEmergencyClose && a.Severity == domain.SeverityCritical {
			criticals++
		}
	}
	if criticals != 1 {
		t.Errorf("emergency_close critical alerts = %d, want exactly 1", criticals)
	}
}

func TestEngine_PauseResumeRevalidates(t *testing.T) {
	h := newHarness(newTestConfig())
	h.start(t)

	if err := h.engine.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}

	h.probe.SetStatus(domain.HealthCritical)
	if err := h.engine.Resume(context.Background()); err == nil {
		t.Fatal("resume succeeded with critical health")
	}
	if h.engine.State() != usecase.EnginePaused {
		t.Errorf("state = %s, want still paused", h.engine.State())
	}

	h.probe.SetStatus(domain.HealthSafe)
	if err := h.engine.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if h.engine.State() != usecase.EngineActive {
		t.Errorf("state = %s, want active", h.engine.State())
	}
}

func TestEngine_AlertBufferBounded(t *testing.T) {
	cfg := newTestConfig()
	cfg.Safety.AlertBufferSize = 3
	h := newHarness(cfg)
	h.start(t)

	for i := 0; i < 4; i++ {
		h.engine.ExecuteTarget(context.Background(), readyTarget(fmt.Sprintf("t%d", i), "NOPEUSDT", 90))
	}

	if n := len(h.engine.Alerts()); n != 3 {
		t.Errorf("alert buffer len = %d, want 3", n)
	}
}

func TestEngine_AcknowledgeAlert(t *testing.T) {
	h := newHarness(newTestConfig())
	h.start(t)
	h.engine.ExecuteTarget(context.Background(), readyTarget("t1", "NOPEUSDT", 90))

	alerts := h.engine.Alerts()
	if len(alerts) == 0 {
		t.Fatal("expected at least one alert")
	}
	if err := h.engine.AcknowledgeAlert(alerts[0].ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if !h.engine.Alerts()[0].Acknowledged {
		t.Error("alert not marked acknowledged")
	}
	if err := h.engine.AcknowledgeAlert("missing"); err == nil {
		t.Error("acknowledging unknown id must fail")
	}
}

func TestEngine_SinkReceivesAlerts(t *testing.T) {
	h := newHarness(newTestConfig())
	h.start(t)

	h.engine.ExecuteTarget(context.Background(), readyTarget("t1", "NOPEUSDT", 90))

	if h.sink.Count() == 0 {
		t.Error("sink received no alerts")
	}
}

func hasAlert(alerts []*domain.ExecutionAlert, typ domain.AlertType) bool {
	for _, a := range alerts {
		if a.Type == typ {
			return true
		}
	}
	return false
}
