package engine

import (
	"testing"
	"time"

	"niftybot-go/internal/market"
)

func TestOptionsBuySignal(t *testing.T) {
	window := flatBars(50, 200, 100)
	for i := range window {
		window[i].AvgDelta = 0.40
		window[i].AvgGamma = 0.002
	}
	// Delta rising 0.06 over the trailing five bars.
	for i := len(window) - 4; i < len(window); i++ {
		window[i].AvgDelta = 0.46
	}

	snap := Snapshot{
		Tick: market.Tick{
			Instrument: "NSE_FO|NIFTY25SEP24500CE",
			Price:      200,
			Book:       market.DepthMetrics{PressureScore: 55},
			Greeks:     market.Greeks{Delta: 0.46, Gamma: 0.004, Theta: -5},
			HasGreeks:  true,
		},
		Bars: window,
		Now:  time.Now(),
	}

	// Pressure +30, delta trend +20, gamma spike +20.
	d := NewOptions(testParams()).Evaluate(snap)
	if d.Action != ActionBuy {
		t.Fatalf("expected BUY, got %s (score %.0f, rationale %v)", d.Action, d.Score, d.Rationale)
	}
	if d.Side != SideCE {
		t.Fatalf("expected CE side, got %s", d.Side)
	}
	if d.Score != 70 {
		t.Fatalf("expected score 70, got %.0f", d.Score)
	}
	if d.StopLoss != 100 || d.Target != 400 {
		t.Fatalf("unexpected premium levels stop=%.2f target=%.2f", d.StopLoss, d.Target)
	}
}

func TestOptionsPenaltiesBlockEntry(t *testing.T) {
	window := flatBars(50, 200, 100)
	for i := range window {
		window[i].AvgDelta = 0.40
		window[i].AvgGamma = 0.002
	}
	for i := len(window) - 4; i < len(window); i++ {
		window[i].AvgDelta = 0.46
	}

	// Same setup but heavy theta and a wide spread shave 20 points.
	snap := Snapshot{
		Tick: market.Tick{
			Instrument: "NSE_FO|NIFTY25SEP24500CE",
			Price:      200,
			Book:       market.DepthMetrics{PressureScore: 55, SpreadPercent: 8},
			Greeks:     market.Greeks{Delta: 0.46, Gamma: 0.004, Theta: -25},
			HasGreeks:  true,
		},
		Bars: window,
		Now:  time.Now(),
	}

	d := NewOptions(testParams()).Evaluate(snap)
	if d.Action != ActionNoSignal {
		t.Fatalf("expected NO_SIGNAL, got %s (score %.0f)", d.Action, d.Score)
	}
	if d.Score != 50 {
		t.Fatalf("expected score 50 after penalties, got %.0f", d.Score)
	}
}

func TestOptionsRejectsNonOptionInstrument(t *testing.T) {
	snap := Snapshot{
		Tick: market.Tick{Instrument: "NSE_FO|47664", Price: 100},
		Bars: flatBars(50, 100, 100),
		Now:  time.Now(),
	}
	if d := NewOptions(testParams()).Evaluate(snap); d.Action != ActionWait {
		t.Fatalf("expected WAIT for a future key, got %s", d.Action)
	}
}

func TestOptionsCheckExitDeltaDecay(t *testing.T) {
	strat := NewOptions(testParams())
	pos := &Position{Side: SideCE, EntryDelta: 0.5}

	decayed := Snapshot{Tick: market.Tick{
		Greeks:    market.Greeks{Delta: 0.30},
		HasGreeks: true,
	}}
	if d := strat.CheckExit(pos, decayed); d.Action != ActionExit || d.Reason != "DELTA_REVERSAL" {
		t.Fatalf("expected delta-decay exit, got %+v", d)
	}

	healthy := Snapshot{Tick: market.Tick{
		Greeks:    market.Greeks{Delta: 0.48},
		HasGreeks: true,
	}}
	if d := strat.CheckExit(pos, healthy); d.Action != ActionHold {
		t.Fatalf("expected HOLD with healthy delta, got %+v", d)
	}
}

func TestOptionsCheckExitPressureReversal(t *testing.T) {
	strat := NewOptions(testParams())
	ce := &Position{Side: SideCE, EntryDelta: 0.5}
	pe := &Position{Side: SidePE, EntryDelta: -0.5}

	askHeavy := Snapshot{Tick: market.Tick{
		Book:      market.DepthMetrics{PressureScore: -50},
		Greeks:    market.Greeks{Delta: 0.5},
		HasGreeks: true,
	}}
	if d := strat.CheckExit(ce, askHeavy); d.Action != ActionExit || d.Reason != "ORDER_BOOK_REVERSAL" {
		t.Fatalf("expected CE pressure-reversal exit, got %+v", d)
	}

	// A put gains on ask pressure, so the same book holds it.
	askHeavy.Tick.Greeks.Delta = -0.5
	if d := strat.CheckExit(pe, askHeavy); d.Action != ActionHold {
		t.Fatalf("ask pressure should not exit a PE, got %+v", d)
	}

	bidHeavy := Snapshot{Tick: market.Tick{
		Book:      market.DepthMetrics{PressureScore: 50},
		Greeks:    market.Greeks{Delta: -0.5},
		HasGreeks: true,
	}}
	if d := strat.CheckExit(pe, bidHeavy); d.Action != ActionExit || d.Reason != "ORDER_BOOK_REVERSAL" {
		t.Fatalf("expected PE pressure-reversal exit, got %+v", d)
	}

	bidHeavy.Tick.Greeks.Delta = 0.5
	if d := strat.CheckExit(ce, bidHeavy); d.Action != ActionHold {
		t.Fatalf("bid pressure should not exit a CE, got %+v", d)
	}
}

func TestOptionSide(t *testing.T) {
	if got := optionSide("NSE_FO|NIFTY25SEP24500CE"); got != SideCE {
		t.Fatalf("expected CE, got %q", got)
	}
	if got := optionSide("NSE_FO|NIFTY25SEP24000PE"); got != SidePE {
		t.Fatalf("expected PE, got %q", got)
	}
	if got := optionSide("NSE_FO|47664"); got != Side("") {
		t.Fatalf("expected empty side, got %q", got)
	}
}
