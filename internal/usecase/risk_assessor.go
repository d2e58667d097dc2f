package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
)

// RiskAssessor scores a candidate trade against current positions and
// portfolio exposure. It holds no trade state of its own; only the limits
// it scores against, which are swapped atomically on config updates.
type RiskAssessor struct {
	mu             sync.RWMutex
	maxPositions   int
	positionSize   float64
	maxDrawdownPct float64
}

func NewRiskAssessor(maxPositions int, positionSize, maxDrawdownPct float64) *RiskAssessor {
	return &RiskAssessor{
		maxPositions:   maxPositions,
		positionSize:   positionSize,
		maxDrawdownPct: maxDrawdownPct,
	}
}

func (r *RiskAssessor) Reconfigure(maxPositions int, positionSize, maxDrawdownPct float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxPositions = maxPositions
	r.positionSize = positionSize
	r.maxDrawdownPct = maxDrawdownPct
}

// Assess returns a 0-100 risk score (higher is riskier), a verdict, and
// the reasons behind it. Score bands: <40 proceed, <60 reduce, <80 block,
// otherwise emergency stop. Hard limits override the banded score.
func (r *RiskAssessor) Assess(ctx context.Context, candidate *domain.SnipeTarget, open []*domain.Position) (*domain.RiskAssessment, error) {
	r.mu.RLock()
	maxPositions := r.maxPositions
	positionSize := r.positionSize
	maxDrawdownPct := r.maxDrawdownPct
	r.mu.RUnlock()

	if candidate == nil {
		return nil, &domain.ValidationError{Field: "candidate", Reason: "nil"}
	}

	score := 0.0
	var reasons []string

	// Capacity pressure. Full book is a hard block.
	if maxPositions > 0 {
		usage := float64(len(open)) / float64(maxPositions)
		score += usage * 25
		if len(open) >= maxPositions {
			reasons = append(reasons, fmt.Sprintf("position limit reached (%d/%d)", len(open), maxPositions))
			return &domain.RiskAssessment{Score: clampScore(score + 40), Verdict: domain.VerdictBlock, Reasons: reasons}, nil
		}
	}

	// Oversized candidate relative to the configured per-trade size.
	if positionSize > 0 && candidate.PositionSize > positionSize {
		over := candidate.PositionSize/positionSize - 1
		score += minFloat(over*30, 30)
		reasons = append(reasons, fmt.Sprintf("candidate size %.2f exceeds configured %.2f", candidate.PositionSize, positionSize))
	}

	// Symbol concentration: an existing open position in the same symbol.
	for _, p := range open {
		if p.Symbol == candidate.Symbol {
			score += 20
			reasons = append(reasons, "existing open position for "+candidate.Symbol)
			break
		}
	}

	// Portfolio drawdown against the configured ceiling.
	totalValue := 0.0
	unrealized := 0.0
	for _, p := range open {
		totalValue += p.Value()
		unrealized += p.UnrealizedPnL
	}
	if totalValue > 0 && unrealized < 0 {
		drawdownPct := -unrealized / totalValue * 100
		if maxDrawdownPct > 0 {
			ratio := drawdownPct / maxDrawdownPct
			score += minFloat(ratio*40, 60)
			if ratio >= 1.5 {
				reasons = append(reasons, fmt.Sprintf("drawdown %.1f%% far beyond limit %.1f%%", drawdownPct, maxDrawdownPct))
				return &domain.RiskAssessment{Score: clampScore(score), Verdict: domain.VerdictEmergencyStop, Reasons: reasons}, nil
			}
			if ratio >= 1.0 {
				reasons = append(reasons, fmt.Sprintf("drawdown %.1f%% exceeds limit %.1f%%", drawdownPct, maxDrawdownPct))
			}
		}
	}

	// Low confidence raises risk even when it passes the engine's gate.
	if candidate.Confidence < 90 {
		score += (90 - candidate.Confidence) * 0.3
	}

	score = clampScore(score)
	verdict := domain.VerdictProceed
	switch {
	case score >= 80:
		verdict = domain.VerdictEmergencyStop
	case score >= 60:
		verdict = domain.VerdictBlock
	case score >= 40:
		verdict = domain.VerdictReduce
	}

	return &domain.RiskAssessment{Score: score, Verdict: verdict, Reasons: reasons}, nil
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
