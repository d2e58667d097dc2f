package usecase

import (
	"sync"
	"time"

	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
	"go.uber.org/zap"
)

// Channel names monitored by the breaker.
const (
	ChannelTradeExecution  = "trade_execution"
	ChannelPositionMonitor = "position_monitor"
)

type breakerState struct {
	failures    int
	open        bool
	nextAttempt time.Time
}

// BreakerStatus is a read-only snapshot of one channel.
type BreakerStatus struct {
	Failures    int       `json:"failures"`
	Open        bool      `json:"open"`
	NextAttempt time.Time `json:"next_attempt,omitempty"`
}

// CircuitBreaker tracks consecutive failures per logical channel and blocks
// further attempts once the threshold is reached, until the reset delay
// elapses. The open check performs the reset itself (check-and-reset), so
// callers observe closed state atomically with the cooldown expiry.
type CircuitBreaker struct {
	mu         sync.Mutex
	threshold  int
	resetDelay time.Duration
	channels   map[string]*breakerState
	clock      domain.Clock
	logger     *zap.Logger
	onTrip     func(channel string, failures int)
}

func NewCircuitBreaker(threshold int, resetDelay time.Duration, clock domain.Clock, logger *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:  threshold,
		resetDelay: resetDelay,
		channels:   make(map[string]*breakerState),
		clock:      clock,
		logger:     logger,
	}
}

// OnTrip registers a handler invoked exactly once per trip, not per
// subsequent failure while open.
func (cb *CircuitBreaker) OnTrip(fn func(channel string, failures int)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTrip = fn
}

func (cb *CircuitBreaker) state(channel string) *breakerState {
	st, ok := cb.channels[channel]
	if !ok {
		st = &breakerState{}
		cb.channels[channel] = st
	}
	return st
}

func (cb *CircuitBreaker) RecordFailure(channel string) {
	cb.mu.Lock()
	st := cb.state(channel)
	st.failures++
	tripped := false
	if !st.open && st.failures >= cb.threshold {
		st.open = true
		st.nextAttempt = cb.clock.Now().Add(cb.resetDelay)
		tripped = true
	}
	failures := st.failures
	onTrip := cb.onTrip
	cb.mu.Unlock()

	if tripped {
		cb.logger.Warn("Circuit breaker tripped",
			zap.String("channel", channel),
			zap.Int("failures", failures),
			zap.Duration("reset_delay", cb.resetDelay))
		if onTrip != nil {
			onTrip(channel, failures)
		}
	}
}

// RecordSuccess clears the failure count. It does not close an open
// breaker; only the nextAttempt boundary does.
func (cb *CircuitBreaker) RecordSuccess(channel string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state(channel).failures = 0
}

// IsOpen reports whether the channel is blocked. If the reset delay has
// elapsed the breaker closes and the failure count clears as a side effect
// of this check.
func (cb *CircuitBreaker) IsOpen(channel string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := cb.state(channel)
	if st.open && !cb.clock.Now().Before(st.nextAttempt) {
		st.open = false
		st.failures = 0
		cb.logger.Info("Circuit breaker reset", zap.String("channel", channel))
	}
	return st.open
}

// Reconfigure applies updated threshold and delay. Existing open channels
// keep their current nextAttempt.
func (cb *CircuitBreaker) Reconfigure(threshold int, resetDelay time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.threshold = threshold
	cb.resetDelay = resetDelay
}

// Status returns a snapshot of every tracked channel.
func (cb *CircuitBreaker) Status() map[string]BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	out := make(map[string]BreakerStatus, len(cb.channels))
	for name, st := range cb.channels {
		out[name] = BreakerStatus{Failures: st.failures, Open: st.open, NextAttempt: st.nextAttempt}
	}
	return out
}
