package engine

import (
	"fmt"

	"niftybot-go/internal/bars"
	"niftybot-go/internal/market"
)

// Futures scores directional momentum on the future itself: session VWAP
// side, depth pressure, price displacement on expanding volume, and gamma
// spikes. Positive scores open longs, negative scores open shorts.
type Futures struct {
	p Params

	lastGreeks market.Greeks
	hasGreeks  bool
}

// NewFutures builds the futures variant.
func NewFutures(p Params) *Futures { return &Futures{p: p} }

func (s *Futures) Name() string { return "futures" }

// CurrentGreeks reports the greeks from the last evaluated tick.
func (s *Futures) CurrentGreeks() (market.Greeks, bool) { return s.lastGreeks, s.hasGreeks }

func (s *Futures) observe(t market.Tick) {
	if t.HasGreeks {
		s.lastGreeks = t.Greeks
		s.hasGreeks = true
	}
}

func (s *Futures) Evaluate(snap Snapshot) Decision {
	s.observe(snap.Tick)
	window := snap.Bars
	if len(window) < 2 {
		return Wait("collecting data")
	}
	cur := window[len(window)-1]
	prev := window[len(window)-2]

	var score float64
	var rationale []string

	if snap.SessionVWAP > 0 {
		if cur.Close > snap.SessionVWAP {
			score += 25
			rationale = append(rationale, "price above session VWAP")
		} else {
			score -= 25
			rationale = append(rationale, "price below session VWAP")
		}
	}

	pressure := snap.Tick.Book.PressureScore
	if pressure > s.p.FuturesPressure {
		score += 35
		rationale = append(rationale, fmt.Sprintf("strong bid pressure %.1f", pressure))
	} else if pressure < -s.p.FuturesPressure {
		score -= 35
		rationale = append(rationale, fmt.Sprintf("strong ask pressure %.1f", pressure))
	}

	var priceChange float64
	if prev.Close > 0 {
		priceChange = (cur.Close - prev.Close) / prev.Close * 100
	}
	volRatio := 0.0
	if avg := avgVolume(window, 20); avg > 0 {
		volRatio = cur.Volume / avg
	}
	if priceChange > 0.3 && volRatio > 1.2 {
		score += 25
		rationale = append(rationale, fmt.Sprintf("up %.2f%% on %.1fx volume", priceChange, volRatio))
	} else if priceChange < -0.3 && volRatio > 1.2 {
		score -= 25
		rationale = append(rationale, fmt.Sprintf("down %.2f%% on %.1fx volume", priceChange, volRatio))
	}

	if snap.Tick.HasGreeks {
		avgGamma := avgOf(window, 20, func(b bars.Bar) float64 { return b.AvgGamma })
		if avgGamma > 0 && snap.Tick.Greeks.Gamma > avgGamma*1.5 {
			score += 15
			rationale = append(rationale, "gamma spike")
		}
	}

	confidence := clampConfidence(score)
	switch {
	case score > s.p.FuturesScoreEntry && confidence > s.p.MinConfidence:
		return Decision{
			Action:     ActionBuy,
			Symbol:     snap.Tick.Instrument,
			Side:       SideLong,
			Entry:      cur.Close,
			StopLoss:   cur.Close - snap.ATR*s.p.StopATRMultiple,
			Target:     cur.Close + snap.ATR*s.p.TargetATRMultiple,
			Score:      score,
			Confidence: confidence,
			Rationale:  rationale,
		}
	case score < -s.p.FuturesScoreEntry && confidence > s.p.MinConfidence:
		return Decision{
			Action:     ActionSell,
			Symbol:     snap.Tick.Instrument,
			Side:       SideShort,
			Entry:      cur.Close,
			StopLoss:   cur.Close + snap.ATR*s.p.StopATRMultiple,
			Target:     cur.Close - snap.ATR*s.p.TargetATRMultiple,
			Score:      score,
			Confidence: confidence,
			Rationale:  rationale,
		}
	}
	return NoSignal(score, confidence, rationale)
}

// CheckExit flags a hard flip of depth pressure against the position.
func (s *Futures) CheckExit(pos *Position, snap Snapshot) Decision {
	s.observe(snap.Tick)
	pressure := snap.Tick.Book.PressureScore
	if pos.Side == SideLong && pressure < -s.p.PressureReversal {
		return Decision{Action: ActionExit, Reason: "ORDER_BOOK_REVERSAL"}
	}
	if pos.Side == SideShort && pressure > s.p.PressureReversal {
		return Decision{Action: ActionExit, Reason: "ORDER_BOOK_REVERSAL"}
	}
	return Decision{Action: ActionHold}
}
