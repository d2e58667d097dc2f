package domain

import (
	"context"
	"time"
)

// Order is a request to the exchange. Either Quantity (base units) or
// QuoteAmount (quote currency to spend) is set for market buys.
type Order struct {
	Symbol      string
	Side        Side
	Type        string // "MARKET" or "LIMIT"
	Quantity    float64
	QuoteAmount float64
	Price       float64 // limit orders only
}

// OrderResult is the exchange's report of a placed order.
type OrderResult struct {
	OrderID     string
	Status      string
	ExecutedQty float64
	Price       float64
}

// Exchange defines the client contract against the trading venue.
// Failures must surface as errors, never silent zero values.
type Exchange interface {
	PlaceOrder(ctx context.Context, order *Order) (*OrderResult, error)
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
	GetAccountBalances(ctx context.Context) error
}

// TargetStore is the persistence contract for snipe targets.
type TargetStore interface {
	// ListReady returns targets with status ready, due now or within the
	// store's look-ahead, ordered by priority then creation time.
	ListReady(ctx context.Context, limit int) ([]*SnipeTarget, error)
	UpdateStatus(ctx context.Context, id string, status TargetStatus, executedAt *time.Time, failureReason string) error
}

// PositionStore persists positions: open ones so a restart (or the
// close-all tool) can recover them, closed ones for reporting.
type PositionStore interface {
	SaveOpenPosition(ctx context.Context, pos *Position) error
	DeleteOpenPosition(ctx context.Context, id string) error
	ListOpenPositions(ctx context.Context) ([]*Position, error)
	SaveClosedPosition(ctx context.Context, pos *Position) error
	ListClosedPositions(ctx context.Context, limit int) ([]*Position, error)
}

type LockOutcome string

const (
	LockGranted LockOutcome = "granted"
	LockQueued  LockOutcome = "queued"
	LockDenied  LockOutcome = "denied"
)

// Locker prevents two workers (or two cycles) from double-executing the
// same resource. Acquired before any state-changing exchange call.
type Locker interface {
	TryAcquire(ctx context.Context, resourceID, ownerID string, ttl time.Duration) (LockOutcome, error)
	Release(ctx context.Context, resourceID string) error
}

type Verdict string

const (
	VerdictProceed       Verdict = "proceed"
	VerdictReduce        Verdict = "reduce"
	VerdictBlock         Verdict = "block"
	VerdictEmergencyStop Verdict = "emergency_stop"
)

// RiskAssessment scores a candidate trade against the current portfolio.
type RiskAssessment struct {
	Score   float64  `json:"score"` // 0-100, higher is riskier
	Verdict Verdict  `json:"verdict"`
	Reasons []string `json:"reasons,omitempty"`
}

// RiskService is consulted before every trade.
type RiskService interface {
	Assess(ctx context.Context, candidate *SnipeTarget, open []*Position) (*RiskAssessment, error)
}

type HealthStatus string

const (
	HealthSafe     HealthStatus = "safe"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// SafetyProbe reports overall system health during pre-flight checks.
type SafetyProbe interface {
	HealthCheck(ctx context.Context) (HealthStatus, error)
}

// AlertSink receives alerts as they are raised. Implementations must not
// block; slow delivery belongs inside the sink.
type AlertSink interface {
	Notify(alert *ExecutionAlert)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
