package engine

import (
	"fmt"
	"strings"
	"time"

	"niftybot-go/internal/bars"
	"niftybot-go/internal/market"
)

// Snapshot is the read-only state one evaluation pass sees: the triggering
// tick, the chronological closed-bar window, and derived aggregates.
type Snapshot struct {
	Tick        market.Tick
	Bars        []bars.Bar
	SessionVWAP float64
	ATR         float64
	Now         time.Time
}

// Strategy scores snapshots into decisions. Implementations are owned by the
// ingestion goroutine and keep no shared mutable state.
type Strategy interface {
	Name() string
	// Evaluate scores a flat snapshot for a fresh entry. The engine has
	// already checked warmup, session window, and risk gates.
	Evaluate(snap Snapshot) Decision
	// CheckExit tests only the strategy-specific reversal condition for an
	// open position. Stop, target, square-off, and trailing belong to the
	// engine.
	CheckExit(pos *Position, snap Snapshot) Decision
	// CurrentGreeks reports the greeks seen on the last evaluated tick.
	CurrentGreeks() (market.Greeks, bool)
}

// Params groups the thresholds both strategy variants score against.
type Params struct {
	MinBars             int
	FuturesScoreEntry   float64
	OptionsScoreEntry   float64
	MinConfidence       float64
	PressureStrong      float64
	PressureModerate    float64
	PressureReversal    float64
	FuturesPressure     float64
	DeltaDecayFraction  float64
	TrailingTriggerPct  float64
	TrailingDistancePct float64
	StopATRMultiple     float64
	TargetATRMultiple   float64
	MaxLossFraction     float64
	TargetProfitFrac    float64
}

// Build constructs the strategy variant named by mode.
func Build(mode string, p Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "futures":
		return NewFutures(p), nil
	case "options":
		return NewOptions(p), nil
	default:
		return nil, fmt.Errorf("unknown strategy mode %q", mode)
	}
}

// Sizer converts an entry price into an order quantity in whole lots.
type Sizer struct {
	RiskPerTrade float64
	LotSize      int
	MinLots      int
	MaxLots      int
}

// Quantity returns lots*LotSize where lots is the capital-derived count
// clamped to [MinLots, MaxLots].
func (s Sizer) Quantity(entry float64) int {
	lots := s.MinLots
	if entry > 0 && s.LotSize > 0 {
		lots = int(s.RiskPerTrade / (entry * float64(s.LotSize)))
	}
	if lots < s.MinLots {
		lots = s.MinLots
	}
	if lots > s.MaxLots {
		lots = s.MaxLots
	}
	return lots * s.LotSize
}

// avgVolume is the mean volume of the trailing n bars.
func avgVolume(window []bars.Bar, n int) float64 {
	return avgOf(window, n, func(b bars.Bar) float64 { return b.Volume })
}

// avgOf averages field over the trailing n bars of window.
func avgOf(window []bars.Bar, n int, field func(bars.Bar) float64) float64 {
	if len(window) == 0 {
		return 0
	}
	if n > len(window) {
		n = len(window)
	}
	var sum float64
	for _, b := range window[len(window)-n:] {
		sum += field(b)
	}
	return sum / float64(n)
}

type trend int

const (
	trendNeutral trend = iota
	trendBullish
	trendBearish
)

// trendOf compares the mean close of the last 5 bars against the 15 before
// them. A move beyond 0.3% either way counts as a trend.
func trendOf(window []bars.Bar) trend {
	if len(window) < 20 {
		return trendNeutral
	}
	recent := avgOf(window, 5, func(b bars.Bar) float64 { return b.Close })
	prior := window[len(window)-20 : len(window)-5]
	var sum float64
	for _, b := range prior {
		sum += b.Close
	}
	base := sum / float64(len(prior))
	if base <= 0 {
		return trendNeutral
	}
	switch change := (recent - base) / base * 100; {
	case change > 0.3:
		return trendBullish
	case change < -0.3:
		return trendBearish
	default:
		return trendNeutral
	}
}

func clampConfidence(score float64) float64 {
	c := score
	if c < 0 {
		c = -c
	}
	if c > 100 {
		c = 100
	}
	return c
}
