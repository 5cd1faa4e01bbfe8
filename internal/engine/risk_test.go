package engine

import (
	"errors"
	"testing"
)

func TestRiskGateLossLimit(t *testing.T) {
	r := NewRiskState(5000, 5)
	if err := r.Gate(); err != nil {
		t.Fatalf("fresh state should pass the gate: %v", err)
	}
	r.RecordExit(-5000)
	if err := r.Gate(); !errors.Is(err, ErrRiskLimitBreached) {
		t.Fatalf("expected ErrRiskLimitBreached, got %v", err)
	}
}

func TestRiskGateTradeLimit(t *testing.T) {
	r := NewRiskState(5000, 2)
	r.RecordExit(100)
	r.RecordExit(100)
	if err := r.Gate(); !errors.Is(err, ErrRiskLimitBreached) {
		t.Fatalf("expected trade-count breach, got %v", err)
	}
}

func TestRiskReset(t *testing.T) {
	r := NewRiskState(5000, 1)
	r.RecordExit(-9000)
	r.Reset()
	if err := r.Gate(); err != nil {
		t.Fatalf("expected clean gate after reset, got %v", err)
	}
	if pnl, trades := r.Snapshot(); pnl != 0 || trades != 0 {
		t.Fatalf("expected zeroed totals, got %.2f/%d", pnl, trades)
	}
}

func TestSizerQuantity(t *testing.T) {
	s := Sizer{RiskPerTrade: 10_000, LotSize: 50, MinLots: 1, MaxLots: 3}

	if q := s.Quantity(100); q != 100 { // 2 lots
		t.Fatalf("expected 100, got %d", q)
	}
	if q := s.Quantity(10); q != 150 { // capped at 3 lots
		t.Fatalf("expected 150, got %d", q)
	}
	if q := s.Quantity(10_000); q != 50 { // floored at 1 lot
		t.Fatalf("expected 50, got %d", q)
	}
	if q := s.Quantity(0); q != 50 { // degenerate entry still sizes minimum
		t.Fatalf("expected 50 for zero entry, got %d", q)
	}
}
