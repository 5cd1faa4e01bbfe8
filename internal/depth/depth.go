// Package depth reduces multi-level order book snapshots into tiered imbalance
// and a weighted pressure score.
package depth

import (
	"fmt"

	"niftybot-go/internal/market"
)

// Tier boundaries over a best-to-worst ordered book. Near levels are retail
// flow, mid levels small institutions, far levels large participants.
const (
	maxLevels = 30
	nearEnd   = 5
	midEnd    = 15
)

// Weights distributes the pressure score across the three tiers. Must sum to 100.
type Weights struct {
	Near float64 `yaml:"near"`
	Mid  float64 `yaml:"mid"`
	Far  float64 `yaml:"far"`
}

// DefaultWeights favor the far tier, where resting size is attributed to
// larger participants.
var DefaultWeights = Weights{Near: 30, Mid: 30, Far: 40}

// Validate rejects weight sets that do not sum to 100.
func (w Weights) Validate() error {
	if sum := w.Near + w.Mid + w.Far; sum != 100 {
		return fmt.Errorf("depth weights must sum to 100, got %.2f", sum)
	}
	return nil
}

// Analyze folds up to 30 depth levels into DepthMetrics. Pure function: an
// empty snapshot yields the zero value and a zero tier never divides by zero.
func Analyze(levels []market.DepthLevel, w Weights) market.DepthMetrics {
	if len(levels) == 0 {
		return market.DepthMetrics{}
	}
	if len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}

	var nearBid, nearAsk, midBid, midAsk, farBid, farAsk float64
	var totalBid, totalAsk float64
	for i, lvl := range levels {
		totalBid += lvl.BidQty
		totalAsk += lvl.AskQty
		switch {
		case i < nearEnd:
			nearBid += lvl.BidQty
			nearAsk += lvl.AskQty
		case i < midEnd:
			midBid += lvl.BidQty
			midAsk += lvl.AskQty
		default:
			farBid += lvl.BidQty
			farAsk += lvl.AskQty
		}
	}

	nearImb := imbalance(nearBid, nearAsk)
	midImb := imbalance(midBid, midAsk)
	farImb := imbalance(farBid, farAsk)

	best := levels[0]
	mid := (best.BidPrice + best.AskPrice) / 2
	var spread float64
	if mid > 0 {
		spread = (best.AskPrice - best.BidPrice) / mid * 100
	}

	return market.DepthMetrics{
		PressureScore: nearImb*w.Near + midImb*w.Mid + farImb*w.Far,
		NearImbalance: nearImb,
		MidImbalance:  midImb,
		FarImbalance:  farImb,
		TotalBidQty:   totalBid,
		TotalAskQty:   totalAsk,
		BestBid:       best.BidPrice,
		BestAsk:       best.AskPrice,
		SpreadPercent: spread,
	}
}

func imbalance(bid, ask float64) float64 {
	total := bid + ask
	if total <= 0 {
		return 0
	}
	return (bid - ask) / total
}
