package engine

import (
	"fmt"
	"strings"

	"niftybot-go/internal/bars"
	"niftybot-go/internal/market"
)

// Options scores premium-buying setups on the option contract itself:
// depth pressure, delta trend, gamma and IV posture, open-interest buildup,
// with theta decay and wide spreads as penalties. Both calls and puts are
// bought, never written.
type Options struct {
	p Params

	lastGreeks market.Greeks
	hasGreeks  bool
}

// NewOptions builds the options variant.
func NewOptions(p Params) *Options { return &Options{p: p} }

func (s *Options) Name() string { return "options" }

// CurrentGreeks reports the greeks from the last evaluated tick.
func (s *Options) CurrentGreeks() (market.Greeks, bool) { return s.lastGreeks, s.hasGreeks }

func (s *Options) observe(t market.Tick) {
	if t.HasGreeks {
		s.lastGreeks = t.Greeks
		s.hasGreeks = true
	}
}

// optionSide infers the contract leg from the instrument identifier.
func optionSide(instrument string) Side {
	up := strings.ToUpper(instrument)
	switch {
	case strings.Contains(up, "CE"):
		return SideCE
	case strings.Contains(up, "PE"):
		return SidePE
	default:
		return ""
	}
}

func (s *Options) Evaluate(snap Snapshot) Decision {
	s.observe(snap.Tick)
	side := optionSide(snap.Tick.Instrument)
	if side == "" {
		return Wait("instrument is not an option contract")
	}
	window := snap.Bars
	if len(window) < 2 {
		return Wait("collecting data")
	}
	cur := window[len(window)-1]
	prev := window[len(window)-2]

	var score float64
	var rationale []string

	pressure := snap.Tick.Book.PressureScore
	if pressure > s.p.PressureStrong {
		score += 30
		rationale = append(rationale, fmt.Sprintf("strong buying pressure %.1f", pressure))
	} else if pressure > s.p.PressureModerate {
		score += 20
		rationale = append(rationale, fmt.Sprintf("moderate buying pressure %.1f", pressure))
	}

	if len(window) >= 5 {
		deltaTrend := cur.AvgDelta - window[len(window)-5].AvgDelta
		switch side {
		case SideCE:
			if deltaTrend > 0.05 {
				score += 20
				rationale = append(rationale, "delta rising fast")
			} else if deltaTrend > 0.02 {
				score += 10
				rationale = append(rationale, "delta rising")
			}
		case SidePE:
			if deltaTrend < -0.05 {
				score += 20
				rationale = append(rationale, "delta falling fast")
			} else if deltaTrend < -0.02 {
				score += 10
				rationale = append(rationale, "delta falling")
			}
		}
	}

	if snap.Tick.HasGreeks {
		avgGamma := avgOf(window, 20, func(b bars.Bar) float64 { return b.AvgGamma })
		if avgGamma > 0 {
			if snap.Tick.Greeks.Gamma > avgGamma*1.5 {
				score += 20
				rationale = append(rationale, "gamma spike")
			} else if snap.Tick.Greeks.Gamma > avgGamma*1.2 {
				score += 10
				rationale = append(rationale, "elevated gamma")
			}
		}
	}

	if avgIV := avgOf(window, 30, func(b bars.Bar) float64 { return b.AvgIV }); avgIV > 0 && snap.Tick.IV > 0 {
		ivPct := (snap.Tick.IV/avgIV - 1) * 100
		if ivPct > -10 && ivPct < 10 {
			score += 15
			rationale = append(rationale, "IV near its average")
		} else if ivPct < -10 {
			score += 10
			rationale = append(rationale, "IV below its average")
		}
	}

	var priceChange float64
	if prev.Close > 0 {
		priceChange = (cur.Close - prev.Close) / prev.Close * 100
	}
	if cur.OIChangePercent > 5 && priceChange > 0.5 {
		score += 15
		rationale = append(rationale, fmt.Sprintf("OI up %.1f%% with price", cur.OIChangePercent))
	} else if cur.OIChangePercent > 2 && priceChange > 0.2 {
		score += 8
		rationale = append(rationale, fmt.Sprintf("OI up %.1f%%", cur.OIChangePercent))
	}

	if theta := snap.Tick.Greeks.Theta; theta > 20 || theta < -20 {
		score -= 10
		rationale = append(rationale, "heavy theta decay")
	}
	if snap.Tick.Book.SpreadPercent > 5 {
		score -= 10
		rationale = append(rationale, fmt.Sprintf("wide spread %.1f%%", snap.Tick.Book.SpreadPercent))
	}

	switch tr := trendOf(window); {
	case side == SideCE && tr == trendBullish:
		score += 10
		rationale = append(rationale, "bullish underlying trend")
	case side == SidePE && tr == trendBearish:
		score += 10
		rationale = append(rationale, "bearish underlying trend")
	}

	confidence := clampConfidence(score)
	if score > s.p.OptionsScoreEntry && confidence > s.p.MinConfidence {
		premium := cur.Close
		return Decision{
			Action:     ActionBuy,
			Symbol:     snap.Tick.Instrument,
			Side:       side,
			Entry:      premium,
			StopLoss:   premium * (1 - s.p.MaxLossFraction),
			Target:     premium * (1 + s.p.TargetProfitFrac),
			Score:      score,
			Confidence: confidence,
			Rationale:  rationale,
		}
	}
	return NoSignal(score, confidence, rationale)
}

// CheckExit flags delta decaying past the configured fraction of its entry
// value, or depth pressure flipping hard against the leg.
func (s *Options) CheckExit(pos *Position, snap Snapshot) Decision {
	s.observe(snap.Tick)
	if snap.Tick.HasGreeks && pos.EntryDelta != 0 {
		delta := snap.Tick.Greeks.Delta
		if pos.Side == SideCE && delta < pos.EntryDelta*s.p.DeltaDecayFraction {
			return Decision{Action: ActionExit, Reason: "DELTA_REVERSAL"}
		}
		if pos.Side == SidePE && delta > pos.EntryDelta*s.p.DeltaDecayFraction {
			return Decision{Action: ActionExit, Reason: "DELTA_REVERSAL"}
		}
	}
	pressure := snap.Tick.Book.PressureScore
	if pos.Side == SideCE && pressure < -s.p.PressureReversal {
		return Decision{Action: ActionExit, Reason: "ORDER_BOOK_REVERSAL"}
	}
	if pos.Side == SidePE && pressure > s.p.PressureReversal {
		return Decision{Action: ActionExit, Reason: "ORDER_BOOK_REVERSAL"}
	}
	return Decision{Action: ActionHold}
}
