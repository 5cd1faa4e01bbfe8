package engine

import (
	"testing"
	"time"

	"niftybot-go/internal/market"
)

func TestFuturesBuySignal(t *testing.T) {
	window := flatBars(50, 100, 100)
	// Last bar: up 1% on roughly double the average volume.
	last := &window[len(window)-1]
	last.Close = 101
	last.High = 101
	last.Volume = 200

	snap := Snapshot{
		Tick: market.Tick{
			Instrument: "NSE_FO|47664",
			Price:      101,
			Book:       market.DepthMetrics{PressureScore: 45},
		},
		Bars:        window,
		SessionVWAP: 100.5,
		ATR:         2,
		Now:         time.Now(),
	}

	d := NewFutures(testParams()).Evaluate(snap)
	if d.Action != ActionBuy {
		t.Fatalf("expected BUY, got %s (score %.0f, rationale %v)", d.Action, d.Score, d.Rationale)
	}
	if d.Side != SideLong {
		t.Fatalf("expected LONG side, got %s", d.Side)
	}
	if d.Score != 85 {
		t.Fatalf("expected score 85, got %.0f", d.Score)
	}
	if d.StopLoss != 101-3 || d.Target != 101+6 {
		t.Fatalf("unexpected levels stop=%.2f target=%.2f", d.StopLoss, d.Target)
	}
}

func TestFuturesSellSignal(t *testing.T) {
	window := flatBars(50, 100, 100)
	last := &window[len(window)-1]
	last.Close = 99
	last.Low = 99
	last.Volume = 200

	snap := Snapshot{
		Tick: market.Tick{
			Instrument: "NSE_FO|47664",
			Price:      99,
			Book:       market.DepthMetrics{PressureScore: -45},
		},
		Bars:        window,
		SessionVWAP: 100,
		ATR:         2,
		Now:         time.Now(),
	}

	d := NewFutures(testParams()).Evaluate(snap)
	if d.Action != ActionSell {
		t.Fatalf("expected SELL, got %s (score %.0f)", d.Action, d.Score)
	}
	if d.Side != SideShort {
		t.Fatalf("expected SHORT side, got %s", d.Side)
	}
	if d.StopLoss != 99+3 || d.Target != 99-6 {
		t.Fatalf("unexpected levels stop=%.2f target=%.2f", d.StopLoss, d.Target)
	}
}

func TestFuturesNoSignalWhenFlat(t *testing.T) {
	window := flatBars(50, 100, 100)
	snap := Snapshot{
		Tick:        market.Tick{Instrument: "NSE_FO|47664", Price: 100},
		Bars:        window,
		SessionVWAP: 100,
		ATR:         2,
		Now:         time.Now(),
	}

	d := NewFutures(testParams()).Evaluate(snap)
	if d.Action != ActionNoSignal {
		t.Fatalf("expected NO_SIGNAL, got %s (score %.0f)", d.Action, d.Score)
	}
}

func TestFuturesCheckExitPressureReversal(t *testing.T) {
	strat := NewFutures(testParams())
	long := &Position{Side: SideLong}
	short := &Position{Side: SideShort}

	against := Snapshot{Tick: market.Tick{Book: market.DepthMetrics{PressureScore: -55}}}
	if d := strat.CheckExit(long, against); d.Action != ActionExit || d.Reason != "ORDER_BOOK_REVERSAL" {
		t.Fatalf("expected reversal exit for long, got %+v", d)
	}
	if d := strat.CheckExit(short, against); d.Action != ActionHold {
		t.Fatalf("ask pressure should not exit a short, got %+v", d)
	}

	with := Snapshot{Tick: market.Tick{Book: market.DepthMetrics{PressureScore: 55}}}
	if d := strat.CheckExit(short, with); d.Action != ActionExit {
		t.Fatalf("expected reversal exit for short, got %+v", d)
	}
}
