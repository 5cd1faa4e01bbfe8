package engine

import (
	"testing"
	"time"

	"niftybot-go/internal/bars"
	"niftybot-go/internal/market"
)

func testParams() Params {
	return Params{
		MinBars:             50,
		FuturesScoreEntry:   50,
		OptionsScoreEntry:   60,
		MinConfidence:       60,
		PressureStrong:      50,
		PressureModerate:    30,
		PressureReversal:    40,
		FuturesPressure:     40,
		DeltaDecayFraction:  0.7,
		TrailingTriggerPct:  1,
		TrailingDistancePct: 1,
		StopATRMultiple:     1.5,
		TargetATRMultiple:   3,
		MaxLossFraction:     0.5,
		TargetProfitFrac:    1,
	}
}

// flatBars builds n identical bars so no score component fires on its own.
func flatBars(n int, close, volume float64) []bars.Bar {
	out := make([]bars.Bar, n)
	for i := range out {
		out[i] = bars.Bar{
			BucketStart: int64(i) * 60_000,
			Open:        close,
			High:        close,
			Low:         close,
			Close:       close,
			Volume:      volume,
			VWAP:        close,
		}
	}
	return out
}

func mustWindow(t *testing.T) Window {
	t.Helper()
	w, err := NewWindow("09:15", "15:30", "15:15", "Asia/Kolkata")
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	return w
}

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return loc
}

type stubStrategy struct {
	entry Decision
	exit  Decision
}

func (s *stubStrategy) Name() string                           { return "stub" }
func (s *stubStrategy) Evaluate(Snapshot) Decision             { return s.entry }
func (s *stubStrategy) CheckExit(*Position, Snapshot) Decision { return s.exit }
func (s *stubStrategy) CurrentGreeks() (market.Greeks, bool) {
	return market.Greeks{Delta: 0.5}, true
}
