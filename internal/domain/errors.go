package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrLockContention means the resource is already being processed by
	// another worker. Skip this cycle, retry next cycle.
	ErrLockContention = errors.New("resource locked by another worker")

	// ErrCircuitOpen short-circuits execution without calling the exchange.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// ValidationError marks a malformed target or candidate. Rejected locally,
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// ExchangeError wraps a network or API failure from the exchange client.
// It increments the circuit breaker and surfaces as an alert.
type ExchangeError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("exchange %s %s: %v", e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("exchange %s: %v", e.Op, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// RiskBlockedError means the risk assessment verdict forbids the trade.
// Logged and counted separately from failures, not treated as an error path.
type RiskBlockedError struct {
	Verdict Verdict
	Reasons []string
}

func (e *RiskBlockedError) Error() string {
	return fmt.Sprintf("risk verdict %s: %s", e.Verdict, strings.Join(e.Reasons, "; "))
}

// CriticalSafetyError blocks Start and Resume entirely while the health
// probe reports critical.
type CriticalSafetyError struct {
	Status HealthStatus
}

func (e *CriticalSafetyError) Error() string {
	return fmt.Sprintf("safety system reports %s state", e.Status)
}
