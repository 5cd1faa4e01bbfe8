// Package market standardizes payloads shared between the feed and the decision layers.
package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTick flags ticks whose price or quantity could not have come from a real trade.
var ErrInvalidTick = errors.New("invalid tick")

// DepthLevel is a single bid/ask rung of the order book, best levels first.
type DepthLevel struct {
	BidQty   float64
	AskQty   float64
	BidPrice float64
	AskPrice float64
}

// Greeks carries option sensitivity measures for option instruments.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
}

// DepthMetrics is the reduced view of one depth snapshot. Derived per tick, never stored.
type DepthMetrics struct {
	PressureScore float64
	NearImbalance float64
	MidImbalance  float64
	FarImbalance  float64
	TotalBidQty   float64
	TotalAskQty   float64
	BestBid       float64
	BestAsk       float64
	SpreadPercent float64
}

// Tick models one decoded market update for an instrument. Immutable once built;
// Book is filled in by the pipeline after depth analysis.
type Tick struct {
	Instrument string
	Timestamp  int64 // venue timestamp, epoch millis
	Price      float64
	Qty        float64
	Depth      []DepthLevel
	Book       DepthMetrics
	Greeks     Greeks
	HasGreeks  bool
	OI         float64
	IV         float64
}

// Time converts the venue timestamp to wall clock.
func (t Tick) Time() time.Time { return time.UnixMilli(t.Timestamp) }

// Validate rejects ticks with a non-positive price or negative quantity.
func (t Tick) Validate() error {
	if t.Price <= 0 {
		return fmt.Errorf("%w: non-positive price %.4f", ErrInvalidTick, t.Price)
	}
	if t.Qty < 0 {
		return fmt.Errorf("%w: negative quantity %.4f", ErrInvalidTick, t.Qty)
	}
	return nil
}
