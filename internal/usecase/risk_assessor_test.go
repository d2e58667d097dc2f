package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
	"github.com/RyanLisse/mexc-sniper-bot/internal/usecase"
)

func openPosition(symbol string, qty, price, unrealized float64) *domain.Position {
	return &domain.Position{
		ID:            "pos-" + symbol,
		Symbol:        symbol,
		Side:          domain.SideBuy,
		Quantity:      qty,
		EntryPrice:    price,
		CurrentPrice:  price,
		UnrealizedPnL: unrealized,
		Status:        domain.PositionOpen,
	}
}

func TestRiskAssessor_ProceedOnHealthyBook(t *testing.T) {
	r := usecase.NewRiskAssessor(5, 100, 20)

	a, err := r.Assess(context.Background(), readyTarget("t1", "NEWUSDT", 95), nil)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if a.Verdict != domain.VerdictProceed {
		t.Errorf("verdict = %s, want proceed (score %.1f, reasons %v)", a.Verdict, a.Score, a.Reasons)
	}
}

func TestRiskAssessor_BlocksAtFullBook(t *testing.T) {
	r := usecase.NewRiskAssessor(2, 100, 20)
	open := []*domain.Position{
		openPosition("AAAUSDT", 1, 100, 0),
		openPosition("BBBUSDT", 1, 100, 0),
	}

	a, err := r.Assess(context.Background(), readyTarget("t1", "NEWUSDT", 95), open)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if a.Verdict != domain.VerdictBlock {
		t.Errorf("verdict = %s, want block", a.Verdict)
	}
	if len(a.Reasons) == 0 {
		t.Error("block verdict carries no reasons")
	}
}

func TestRiskAssessor_EmergencyOnDeepDrawdown(t *testing.T) {
	r := usecase.NewRiskAssessor(5, 100, 10)
	// 25% underwater against a 10% ceiling.
	open := []*domain.Position{openPosition("AAAUSDT", 1, 80, -20)}

	a, err := r.Assess(context.Background(), readyTarget("t1", "NEWUSDT", 95), open)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if a.Verdict != domain.VerdictEmergencyStop {
		t.Errorf("verdict = %s, want emergency_stop (score %.1f)", a.Verdict, a.Score)
	}
}

func TestRiskAssessor_ReducesOversizedCandidate(t *testing.T) {
	r := usecase.NewRiskAssessor(2, 100, 20)
	open := []*domain.Position{openPosition("AAAUSDT", 1, 100, 0)}

	target := readyTarget("t1", "NEWUSDT", 90)
	target.PositionSize = 200 // double the configured size

	a, err := r.Assess(context.Background(), target, open)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if a.Verdict != domain.VerdictReduce {
		t.Errorf("verdict = %s, want reduce (score %.1f, reasons %v)", a.Verdict, a.Score, a.Reasons)
	}
}

func TestRiskAssessor_NilCandidate(t *testing.T) {
	r := usecase.NewRiskAssessor(5, 100, 20)

	_, err := r.Assess(context.Background(), nil, nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestRiskAssessor_ReconfigureTightensLimits(t *testing.T) {
	r := usecase.NewRiskAssessor(5, 100, 20)
	open := []*domain.Position{openPosition("AAAUSDT", 1, 100, 0)}

	a, _ := r.Assess(context.Background(), readyTarget("t1", "NEWUSDT", 95), open)
	if a.Verdict == domain.VerdictBlock {
		t.Fatal("should not block with room left")
	}

	r.Reconfigure(1, 100, 20)
	a, _ = r.Assess(context.Background(), readyTarget("t1", "NEWUSDT", 95), open)
	if a.Verdict != domain.VerdictBlock {
		t.Errorf("verdict = %s, want block after limit tightened", a.Verdict)
	}
}
