package engine

import (
	"fmt"
	"time"
)

// Window bounds the trading day in a fixed timezone. Times compare as
// minutes of the local day, so the window works across dates.
type Window struct {
	open      int // minutes since local midnight
	close     int
	squareOff int
	loc       *time.Location
}

// NewWindow parses "HH:MM" open, close, and square-off times in tz.
func NewWindow(open, close, squareOff, tz string) (Window, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Window{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	w := Window{loc: loc}
	if w.open, err = parseMinutes(open); err != nil {
		return Window{}, fmt.Errorf("session open: %w", err)
	}
	if w.close, err = parseMinutes(close); err != nil {
		return Window{}, fmt.Errorf("session close: %w", err)
	}
	if w.squareOff, err = parseMinutes(squareOff); err != nil {
		return Window{}, fmt.Errorf("session square-off: %w", err)
	}
	if w.open >= w.close {
		return Window{}, fmt.Errorf("session open %s not before close %s", open, close)
	}
	return w, nil
}

func parseMinutes(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (w Window) minutesOf(t time.Time) int {
	local := t.In(w.loc)
	return local.Hour()*60 + local.Minute()
}

// Contains reports whether t falls inside [open, close).
func (w Window) Contains(t time.Time) bool {
	m := w.minutesOf(t)
	return m >= w.open && m < w.close
}

// PastSquareOff reports whether t has reached the end-of-day square-off time.
func (w Window) PastSquareOff(t time.Time) bool {
	return w.minutesOf(t) >= w.squareOff
}
