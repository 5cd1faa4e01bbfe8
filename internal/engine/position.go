package engine

import "time"

// Position is one open trade. The engine owns the only mutable copy;
// Engine.Position hands out value copies.
type Position struct {
	Instrument string
	Side       Side
	Entry      float64
	StopLoss   float64
	Target     float64
	Quantity   int
	OpenedAt   time.Time
	EntryDelta float64
	OrderID    string
	TradeID    string
}

// Long reports whether the position gains when price rises. Bought option
// premium behaves long regardless of CE or PE.
func (p *Position) Long() bool { return p.Side != SideShort }

// PnL returns the unrealized profit at price, in currency and as a percent
// move from entry.
func (p *Position) PnL(price float64) (pnl, pct float64) {
	diff := price - p.Entry
	if !p.Long() {
		diff = p.Entry - price
	}
	pnl = diff * float64(p.Quantity)
	if p.Entry > 0 {
		pct = diff / p.Entry * 100
	}
	return pnl, pct
}
