package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	targetLookAhead = 5 * time.Second
	targetLockTTL   = 30 * time.Second
)

// TradeExecutor is the engine primitive the processor delegates order
// placement to.
type TradeExecutor interface {
	ExecuteTarget(ctx context.Context, target *domain.SnipeTarget) (*domain.TradeResult, error)
}

// TargetProcessor reads ready targets from the store, validates them, and
// drives their lifecycle: ready -> executing -> completed|failed. It is the
// sole writer of those transitions.
type TargetProcessor struct {
	store   domain.TargetStore
	locker  domain.Locker
	trades  TradeExecutor
	clock   domain.Clock
	logger  *zap.Logger
	ownerID string
}

func NewTargetProcessor(store domain.TargetStore, locker domain.Locker, trades TradeExecutor, clock domain.Clock, logger *zap.Logger) *TargetProcessor {
	return &TargetProcessor{
		store:   store,
		locker:  locker,
		trades:  trades,
		clock:   clock,
		logger:  logger,
		ownerID: "sniper-" + uuid.NewString(),
	}
}

// FetchReadyTargets returns due targets ordered by priority then creation
// time, capped at limit. Read-only against the store.
func (p *TargetProcessor) FetchReadyTargets(ctx context.Context, limit int) ([]*domain.SnipeTarget, error) {
	targets, err := p.store.ListReady(ctx, limit)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now()
	due := targets[:0]
	for _, t := range targets {
		if t.Status != domain.TargetReady {
			continue
		}
		if t.Due(now, targetLookAhead) {
			due = append(due, t)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Validate rejects targets that must never reach execution.
func (p *TargetProcessor) Validate(target *domain.SnipeTarget) error {
	if target == nil {
		return &domain.ValidationError{Field: "target", Reason: "nil"}
	}
	if target.Symbol == "" {
		return &domain.ValidationError{Field: "symbol", Reason: "empty"}
	}
	if target.PositionSize <= 0 {
		return &domain.ValidationError{Field: "position_size", Reason: "must be positive"}
	}
	if target.Status != domain.TargetReady {
		return &domain.ValidationError{Field: "status", Reason: "target is " + string(target.Status) + ", want ready"}
	}
	return nil
}

// Process executes one target end to end. The lock is acquired before the
// executing transition is written; the terminal transition to completed or
// failed is guaranteed even when execution errors, via the deferred
// cleanup path. A second concurrent call for the same resource observes
// lock contention and leaves all state untouched.
func (p *TargetProcessor) Process(ctx context.Context, target *domain.SnipeTarget) (result *domain.TradeResult, err error) {
	if err = p.Validate(target); err != nil {
		return nil, err
	}

	resource := "snipe:buy:" + target.Symbol
	outcome, lockErr := p.locker.TryAcquire(ctx, resource, p.ownerID, targetLockTTL)
	if lockErr != nil {
		return nil, lockErr
	}
	if outcome != domain.LockGranted {
		p.logger.Debug("Target locked by another worker, skipping this cycle",
			zap.String("target", target.ID),
			zap.String("resource", resource))
		return nil, domain.ErrLockContention
	}
	// The lock outlives the exchange call and is released only after the
	// store update lands.
	defer func() {
		if rerr := p.locker.Release(ctx, resource); rerr != nil {
			p.logger.Error("Failed to release lock", zap.String("resource", resource), zap.Error(rerr))
		}
	}()

	if err = p.store.UpdateStatus(ctx, target.ID, domain.TargetExecuting, nil, ""); err != nil {
		return nil, err
	}
	target.Status = domain.TargetExecuting

	// Terminal transition must land even if execution fails.
	defer func() {
		now := p.clock.Now()
		if err != nil {
			target.Status = domain.TargetFailed
			target.FailureReason = err.Error()
			if uerr := p.store.UpdateStatus(ctx, target.ID, domain.TargetFailed, nil, err.Error()); uerr != nil {
				p.logger.Error("Failed to record target failure",
					zap.String("target", target.ID), zap.Error(uerr))
			}
			return
		}
		target.Status = domain.TargetCompleted
		target.ExecutedAt = &now
		if uerr := p.store.UpdateStatus(ctx, target.ID, domain.TargetCompleted, &now, ""); uerr != nil {
			p.logger.Error("Failed to record target completion",
				zap.String("target", target.ID), zap.Error(uerr))
		}
	}()

	result, err = p.trades.ExecuteTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	return result, nil
}
