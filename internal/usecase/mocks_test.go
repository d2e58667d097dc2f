package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/RyanLisse/mexc-sniper-bot/internal/config"
	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
	"github.com/RyanLisse/mexc-sniper-bot/internal/usecase"
)

// fakeClock is a mutable clock shared by the components under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockExchange
type MockExchange struct {
	mu          sync.Mutex
	Prices      map[string]float64
	PriceErr    error
	OrderErr    error
	BalancesErr error
	CloseFails  map[string]bool // symbols whose sell orders fail
	Orders      []*domain.Order
	tickerCalls int
}

func NewMockExchange() *MockExchange {
	return &MockExchange{
		Prices:     make(map[string]float64),
		CloseFails: make(map[string]bool),
	}
}

func (m *MockExchange) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OrderErr != nil {
		return nil, m.OrderErr
	}
	if order.Side == domain.SideSell && m.CloseFails[order.Symbol] {
		return nil, errors.New("insufficient balance")
	}
	m.Orders = append(m.Orders, order)
	price := m.Prices[order.Symbol]
	qty := order.Quantity
	if qty == 0 && price > 0 {
		qty = order.QuoteAmount / price
	}
	return &domain.OrderResult{
		OrderID:     fmt.Sprintf("order-%d", len(m.Orders)),
		Status:      "FILLED",
		ExecutedQty: qty,
		Price:       price,
	}, nil
}

func (m *MockExchange) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickerCalls++
	if m.PriceErr != nil {
		return 0, m.PriceErr
	}
	price, ok := m.Prices[symbol]
	if !ok {
		return 0, errors.New("unknown symbol " + symbol)
	}
	return price, nil
}

func (m *MockExchange) GetAccountBalances(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.BalancesErr
}

func (m *MockExchange) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prices[symbol] = price
}

func (m *MockExchange) TickerCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickerCalls
}

func (m *MockExchange) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Orders)
}

// MockTargetStore
type statusUpdate struct {
	ID     string
	Status domain.TargetStatus
}

type MockTargetStore struct {
	mu        sync.Mutex
	Targets   []*domain.SnipeTarget
	UpdateErr error
	Updates   []statusUpdate
}

// ListReady ignores the limit; the processor re-sorts and caps anyway.
func (m *MockTargetStore) ListReady(ctx context.Context, limit int) ([]*domain.SnipeTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.SnipeTarget, 0, len(m.Targets))
	for _, t := range m.Targets {
		if t.Status == domain.TargetReady {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MockTargetStore) UpdateStatus(ctx context.Context, id string, status domain.TargetStatus, executedAt *time.Time, failureReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.Updates = append(m.Updates, statusUpdate{ID: id, Status: status})
	return nil
}

func (m *MockTargetStore) UpdatesFor(id string) []domain.TargetStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TargetStatus
	for _, u := range m.Updates {
		if u.ID == id {
			out = append(out, u.Status)
		}
	}
	return out
}

// MockPositionStore
type MockPositionStore struct {
	mu          sync.Mutex
	OpenRows    []*domain.Position
	OpenSaved   []string
	OpenDeleted []string
	ClosedSaved []string
}

func (m *MockPositionStore) SaveOpenPosition(ctx context.Context, pos *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenSaved = append(m.OpenSaved, pos.ID)
	return nil
}

func (m *MockPositionStore) DeleteOpenPosition(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenDeleted = append(m.OpenDeleted, id)
	return nil
}

func (m *MockPositionStore) ListOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.OpenRows, nil
}

func (m *MockPositionStore) SaveClosedPosition(ctx context.Context, pos *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClosedSaved = append(m.ClosedSaved, pos.ID)
	return nil
}

func (m *MockPositionStore) ListClosedPositions(ctx context.Context, limit int) ([]*domain.Position, error) {
	return nil, nil
}

// MockLocker grants a free resource and denies any second owner. No TTL
// expiry; tests that need expiry use the real lock manager.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]string)}
}

func (m *MockLocker) TryAcquire(ctx context.Context, resourceID, ownerID string, ttl time.Duration) (domain.LockOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.held[resourceID]; ok && owner != ownerID {
		return domain.LockDenied, nil
	}
	m.held[resourceID] = ownerID
	return domain.LockGranted, nil
}

func (m *MockLocker) Release(ctx context.Context, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, resourceID)
	return nil
}

func (m *MockLocker) HeldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// MockProbe
type MockProbe struct {
	mu     sync.Mutex
	Status domain.HealthStatus
	Err    error
}

func (m *MockProbe) HealthCheck(ctx context.Context) (domain.HealthStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if m.Status == "" {
		return domain.HealthSafe, nil
	}
	return m.Status, nil
}

func (m *MockProbe) SetStatus(s domain.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = s
}

// MockSink
type MockSink struct {
	mu       sync.Mutex
	Received []*domain.ExecutionAlert
}

func (m *MockSink) Notify(alert *domain.ExecutionAlert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Received = append(m.Received, alert)
}

func (m *MockSink) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Received)
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	config.SetDefaults(cfg)
	cfg.Trading.Enabled = true
	return cfg
}

// harness wires the full execution stack against mocks.
type harness struct {
	cfg       *config.Config
	clock     *fakeClock
	exchange  *MockExchange
	store     *MockTargetStore
	locker    *MockLocker
	probe     *MockProbe
	sink      *MockSink
	breaker   *usecase.CircuitBreaker
	risk      *usecase.RiskAssessor
	positions *usecase.PositionManager
	engine    *usecase.ExecutionEngine
	processor *usecase.TargetProcessor
}

func newHarness(cfg *config.Config) *harness {
	h := &harness{
		cfg:      cfg,
		clock:    newFakeClock(),
		exchange: NewMockExchange(),
		store:    &MockTargetStore{},
		locker:   NewMockLocker(),
		probe:    &MockProbe{},
		sink:     &MockSink{},
	}
	log := zap.NewNop()
	h.breaker = usecase.NewCircuitBreaker(cfg.Safety.CircuitThreshold, cfg.CircuitResetDelay(), h.clock, log)
	h.risk = usecase.NewRiskAssessor(cfg.Trading.MaxPositions, cfg.Trading.PositionSize, cfg.Trading.MaxDrawdownPct)
	h.positions = usecase.NewPositionManager(h.exchange, nil, cfg.Safety.HistorySize, cfg.CallTimeout(), h.clock, log)
	h.positions.SetPaperFill(func(entry float64) float64 { return entry })
	h.engine = usecase.NewExecutionEngine(cfg, h.exchange, h.risk, h.breaker, h.positions, h.probe, h.sink, h.clock, log)
	h.processor = usecase.NewTargetProcessor(h.store, h.locker, h.engine, h.clock, log)
	h.engine.BindTargets(h.processor)
	return h
}

func (h *harness) start(t interface{ Fatalf(string, ...any) }) {
	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("engine start: %v", err)
	}
}

func readyTarget(id, symbol string, confidence float64) *domain.SnipeTarget {
	return &domain.SnipeTarget{
		ID:           id,
		Symbol:       symbol,
		PositionSize: 100,
		Confidence:   confidence,
		Priority:     1,
		Status:       domain.TargetReady,
		CreatedAt:    time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
}
