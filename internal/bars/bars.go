// Package bars folds tick streams into fixed-width time bars with bounded history.
package bars

import (
	"niftybot-go/internal/market"
)

const (
	// DefaultWidthMs is one minute, the cadence the strategies are tuned for.
	DefaultWidthMs = 60_000
	// DefaultMaxTicks bounds the raw tick ring.
	DefaultMaxTicks = 10_000
	// DefaultMaxBars bounds the closed-bar ring.
	DefaultMaxBars = 500
	// atrSentinel is returned while there is not enough history for a true
	// range average, keeping stop distances away from zero.
	atrSentinel = 1
)

// Bar is the aggregate of one completed time bucket. Immutable once closed.
type Bar struct {
	BucketStart     int64   `json:"bucket_start"`
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Close           float64 `json:"close"`
	Volume          float64 `json:"volume"`
	VWAP            float64 `json:"vwap"`
	AvgPressure     float64 `json:"avg_pressure"`
	AvgDelta        float64 `json:"avg_delta"`
	AvgGamma        float64 `json:"avg_gamma"`
	AvgTheta        float64 `json:"avg_theta"`
	AvgVega         float64 `json:"avg_vega"`
	AvgIV           float64 `json:"avg_iv"`
	OI              float64 `json:"oi"`
	OIChangePercent float64 `json:"oi_change_percent"`
}

// openBar accumulates running sums for the in-progress bucket so closing a bar
// is a division, not a rescan of tick history.
type openBar struct {
	bucket      int64
	open        float64
	high        float64
	low         float64
	close       float64
	volume      float64
	pqSum       float64 // Σ price×qty for VWAP
	pressureSum float64
	deltaSum    float64
	gammaSum    float64
	thetaSum    float64
	vegaSum     float64
	ivSum       float64
	ticks       int
	oi          float64
}

// Aggregator ingests ticks and maintains bounded tick and bar history.
// Not safe for concurrent use; the ingestion goroutine owns it.
type Aggregator struct {
	widthMs int64
	ticks   *tickRing
	bars    *barRing
	cur     *openBar
}

// New builds an aggregator; non-positive arguments fall back to defaults.
func New(widthMs int64, maxTicks, maxBars int) *Aggregator {
	if widthMs <= 0 {
		widthMs = DefaultWidthMs
	}
	if maxTicks <= 0 {
		maxTicks = DefaultMaxTicks
	}
	if maxBars <= 0 {
		maxBars = DefaultMaxBars
	}
	return &Aggregator{
		widthMs: widthMs,
		ticks:   newTickRing(maxTicks),
		bars:    newBarRing(maxBars),
	}
}

// Ingest folds one tick into the current bar. When the tick opens a new
// bucket the previous bar is closed, pushed into history, and returned.
func (a *Aggregator) Ingest(t market.Tick) *Bar {
	a.ticks.push(t)

	bucket := t.Timestamp / a.widthMs
	var closed *Bar
	if a.cur == nil || a.cur.bucket != bucket {
		closed = a.closeCurrent()
		a.cur = &openBar{
			bucket: bucket,
			open:   t.Price,
			high:   t.Price,
			low:    t.Price,
			close:  t.Price,
		}
	}

	cur := a.cur
	if t.Price > cur.high {
		cur.high = t.Price
	}
	if t.Price < cur.low {
		cur.low = t.Price
	}
	cur.close = t.Price
	cur.volume += t.Qty
	cur.pqSum += t.Price * t.Qty
	cur.pressureSum += t.Book.PressureScore
	cur.deltaSum += t.Greeks.Delta
	cur.gammaSum += t.Greeks.Gamma
	cur.thetaSum += t.Greeks.Theta
	cur.vegaSum += t.Greeks.Vega
	cur.ivSum += t.IV
	cur.oi = t.OI
	cur.ticks++

	return closed
}

// Flush finalizes the trailing in-progress bar, if any, so the last interval
// of a session is not lost on shutdown.
func (a *Aggregator) Flush() *Bar {
	return a.closeCurrent()
}

func (a *Aggregator) closeCurrent() *Bar {
	if a.cur == nil || a.cur.ticks == 0 {
		a.cur = nil
		return nil
	}
	cur := a.cur
	n := float64(cur.ticks)

	vwap := cur.open
	if cur.volume > 0 {
		vwap = cur.pqSum / cur.volume
	}

	bar := Bar{
		BucketStart: cur.bucket * a.widthMs,
		Open:        cur.open,
		High:        cur.high,
		Low:         cur.low,
		Close:       cur.close,
		Volume:      cur.volume,
		VWAP:        vwap,
		AvgPressure: cur.pressureSum / n,
		AvgDelta:    cur.deltaSum / n,
		AvgGamma:    cur.gammaSum / n,
		AvgTheta:    cur.thetaSum / n,
		AvgVega:     cur.vegaSum / n,
		AvgIV:       cur.ivSum / n,
		OI:          cur.oi,
	}
	if prev, ok := a.bars.last(); ok && prev.OI > 0 {
		bar.OIChangePercent = (bar.OI - prev.OI) / prev.OI * 100
	}

	a.bars.push(bar)
	a.cur = nil
	return &bar
}

// Len reports the number of closed bars.
func (a *Aggregator) Len() int { return a.bars.len() }

// Last returns the most recent closed bar.
func (a *Aggregator) Last() (Bar, bool) { return a.bars.last() }

// Recent returns up to n trailing closed bars in chronological order.
func (a *Aggregator) Recent(n int) []Bar { return a.bars.recent(n) }

// LastTick returns the most recently ingested tick.
func (a *Aggregator) LastTick() (market.Tick, bool) { return a.ticks.last() }

// SessionVWAP is the volume-weighted mean of the trailing k bars' VWAPs,
// falling back to the last close when no volume traded.
func (a *Aggregator) SessionVWAP(k int) float64 {
	recent := a.bars.recent(k)
	if len(recent) == 0 {
		return 0
	}
	var pv, vol float64
	for _, b := range recent {
		pv += b.VWAP * b.Volume
		vol += b.Volume
	}
	if vol <= 0 {
		return recent[len(recent)-1].Close
	}
	return pv / vol
}

// ATR averages the true range over the trailing period bars. Returns the
// sentinel value 1 until period+1 bars exist.
func (a *Aggregator) ATR(period int) float64 {
	if period <= 0 {
		period = 14
	}
	recent := a.bars.recent(period + 1)
	if len(recent) < period+1 {
		return atrSentinel
	}
	var sum float64
	for i := 1; i < len(recent); i++ {
		hl := recent[i].High - recent[i].Low
		hc := abs(recent[i].High - recent[i-1].Close)
		lc := abs(recent[i].Low - recent[i-1].Close)
		sum += max3(hl, hc, lc)
	}
	return sum / float64(len(recent)-1)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
