package domain

import "time"

type TargetStatus string

const (
	TargetPending   TargetStatus = "pending"
	TargetReady     TargetStatus = "ready"
	TargetExecuting TargetStatus = "executing"
	TargetCompleted TargetStatus = "completed"
	TargetFailed    TargetStatus = "failed"
)

// SnipeTarget is a detected trading candidate awaiting execution.
// Created by the detection pipeline, persisted in the target store,
// and driven through its lifecycle by the target processor.
type SnipeTarget struct {
	ID            string       `json:"id"`
	Symbol        string       `json:"symbol"`
	PositionSize  float64      `json:"position_size"` // quote currency amount
	Confidence    float64      `json:"confidence"`    // 0-100
	PatternType   string       `json:"pattern_type"`
	StopLossPct   float64      `json:"stop_loss_pct"`
	TakeProfitPct float64      `json:"take_profit_pct"`
	Priority      int          `json:"priority"`
	ExecuteAt     *time.Time   `json:"execute_at,omitempty"` // nil means execute as soon as picked up
	Status        TargetStatus `json:"status"`
	FailureReason string       `json:"failure_reason,omitempty"`
	ExecutedAt    *time.Time   `json:"executed_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// CanTransitionTo enforces the strict forward lifecycle:
// pending -> ready -> executing -> completed|failed. No skipping, no reversal.
func (s TargetStatus) CanTransitionTo(next TargetStatus) bool {
	switch s {
	case TargetPending:
		return next == TargetReady
	case TargetReady:
		return next == TargetExecuting
	case TargetExecuting:
		return next == TargetCompleted || next == TargetFailed
	default:
		return false
	}
}

// Due reports whether the target may be picked up at the given time,
// allowing a short look-ahead window.
func (t *SnipeTarget) Due(now time.Time, lookAhead time.Duration) bool {
	if t.ExecuteAt == nil {
		return true
	}
	return !t.ExecuteAt.After(now.Add(lookAhead))
}
