package engine

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRiskLimitBreached blocks new entries once a daily guard-rail trips.
var ErrRiskLimitBreached = errors.New("risk limit breached")

// RiskState tracks the day's realized P&L and completed trade count.
// Safe for concurrent reads; mutation happens on confirmed exits only.
type RiskState struct {
	mu sync.RWMutex

	maxDailyLoss   float64 // positive magnitude
	maxDailyTrades int

	dailyPnL   float64
	tradeCount int
}

// NewRiskState builds the daily risk tracker from positive limits.
func NewRiskState(maxDailyLoss float64, maxDailyTrades int) *RiskState {
	return &RiskState{maxDailyLoss: maxDailyLoss, maxDailyTrades: maxDailyTrades}
}

// Gate returns ErrRiskLimitBreached when the daily loss or trade-count
// limit blocks new entries.
func (r *RiskState) Gate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.dailyPnL <= -r.maxDailyLoss {
		return fmt.Errorf("%w: daily loss %.2f at limit %.2f", ErrRiskLimitBreached, r.dailyPnL, r.maxDailyLoss)
	}
	if r.tradeCount >= r.maxDailyTrades {
		return fmt.Errorf("%w: %d trades at daily limit %d", ErrRiskLimitBreached, r.tradeCount, r.maxDailyTrades)
	}
	return nil
}

// RecordExit folds one completed round trip into the daily totals.
func (r *RiskState) RecordExit(pnl float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dailyPnL += pnl
	r.tradeCount++
}

// Reset clears the daily totals at the start of a new session.
func (r *RiskState) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dailyPnL = 0
	r.tradeCount = 0
}

// Snapshot reads the current daily totals.
func (r *RiskState) Snapshot() (pnl float64, trades int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dailyPnL, r.tradeCount
}
