package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"niftybot-go/internal/metrics"
)

// Engine runs the per-tick decision loop for a single position. The
// ingestion goroutine drives OnTick/ConfirmEntry/ConfirmExit; other
// goroutines may read Position and Risk concurrently.
type Engine struct {
	mu sync.RWMutex

	strat   Strategy
	risk    *RiskState
	window  Window
	sizer   Sizer
	minBars int

	trailTriggerPct  float64
	trailDistancePct float64

	pos *Position
	log zerolog.Logger
}

// New wires a decision engine around a strategy and its guard-rails.
func New(strat Strategy, risk *RiskState, window Window, sizer Sizer, p Params, log zerolog.Logger) *Engine {
	return &Engine{
		strat:            strat,
		risk:             risk,
		window:           window,
		sizer:            sizer,
		minBars:          p.MinBars,
		trailTriggerPct:  p.TrailingTriggerPct,
		trailDistancePct: p.TrailingDistancePct,
		log:              log,
	}
}

// OnTick produces exactly one decision per snapshot. With a position open it
// runs the exit ladder; flat, it gates and evaluates for entry.
func (e *Engine) OnTick(snap Snapshot) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	var d Decision
	if e.pos != nil {
		d = e.evaluateExit(snap)
	} else {
		d = e.evaluateEntry(snap)
	}
	metrics.DecisionsTotal.WithLabelValues(string(d.Action)).Inc()
	return d
}

func (e *Engine) evaluateEntry(snap Snapshot) Decision {
	if len(snap.Bars) < e.minBars {
		return Wait("collecting bar history")
	}
	if !e.window.Contains(snap.Now) {
		return Wait("outside session window")
	}
	if err := e.risk.Gate(); err != nil {
		return Wait(err.Error())
	}

	d := e.strat.Evaluate(snap)
	if d.Action == ActionBuy || d.Action == ActionSell {
		d.Quantity = e.sizer.Quantity(d.Entry)
		e.log.Info().
			Str("symbol", d.Symbol).
			Str("side", string(d.Side)).
			Float64("entry", d.Entry).
			Float64("stop", d.StopLoss).
			Float64("target", d.Target).
			Int("qty", d.Quantity).
			Float64("score", d.Score).
			Msg("entry signal")
	}
	return d
}

// evaluateExit applies the exit ladder in fixed priority: stop, target,
// strategy reversal, end-of-day square-off. When nothing fires the stop
// trails the price and the position holds.
func (e *Engine) evaluateExit(snap Snapshot) Decision {
	pos := e.pos
	price := snap.Tick.Price
	pnl, pct := pos.PnL(price)

	exit := func(reason string) Decision {
		return Decision{
			Action:     ActionExit,
			Reason:     reason,
			Symbol:     pos.Instrument,
			Side:       pos.Side,
			Quantity:   pos.Quantity,
			ExitPrice:  price,
			PnL:        pnl,
			PnLPercent: pct,
		}
	}

	if pos.Long() {
		if price <= pos.StopLoss {
			return exit("STOP_LOSS_HIT")
		}
		if price >= pos.Target {
			return exit("TARGET_ACHIEVED")
		}
	} else {
		if price >= pos.StopLoss {
			return exit("STOP_LOSS_HIT")
		}
		if price <= pos.Target {
			return exit("TARGET_ACHIEVED")
		}
	}

	if d := e.strat.CheckExit(pos, snap); d.Action == ActionExit {
		return exit(d.Reason)
	}

	if e.window.PastSquareOff(snap.Now) {
		return exit("END_OF_DAY_SQUAREOFF")
	}

	e.trailStop(pos, price, pct)
	return Decision{
		Action:     ActionHold,
		Symbol:     pos.Instrument,
		Side:       pos.Side,
		PnL:        pnl,
		PnLPercent: pct,
	}
}

// trailStop ratchets the stop behind the price once the position is in
// profit past the trigger. The stop only ever tightens.
func (e *Engine) trailStop(pos *Position, price, pct float64) {
	if pct <= e.trailTriggerPct {
		return
	}
	if pos.Long() {
		if candidate := price * (1 - e.trailDistancePct/100); candidate > pos.StopLoss {
			e.log.Debug().Float64("from", pos.StopLoss).Float64("to", candidate).Msg("trailing stop raised")
			pos.StopLoss = candidate
		}
	} else {
		if candidate := price * (1 + e.trailDistancePct/100); candidate < pos.StopLoss {
			e.log.Debug().Float64("from", pos.StopLoss).Float64("to", candidate).Msg("trailing stop lowered")
			pos.StopLoss = candidate
		}
	}
}

// ConfirmEntry records a filled entry order as the open position.
func (e *Engine) ConfirmEntry(d Decision, orderID, tradeID string, openedAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos := &Position{
		Instrument: d.Symbol,
		Side:       d.Side,
		Entry:      d.Entry,
		StopLoss:   d.StopLoss,
		Target:     d.Target,
		Quantity:   d.Quantity,
		OpenedAt:   openedAt,
		OrderID:    orderID,
		TradeID:    tradeID,
	}
	if g, ok := e.strat.CurrentGreeks(); ok {
		pos.EntryDelta = g.Delta
	}
	e.pos = pos
	e.log.Info().Str("symbol", pos.Instrument).Str("order_id", orderID).Msg("position opened")
}

// ConfirmExit folds a filled exit into the daily risk totals and clears the
// position.
func (e *Engine) ConfirmExit(d Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos == nil {
		return
	}
	e.risk.RecordExit(d.PnL)
	e.log.Info().
		Str("symbol", e.pos.Instrument).
		Str("reason", d.Reason).
		Float64("pnl", d.PnL).
		Msg("position closed")
	e.pos = nil
}

// Position returns a copy of the open position, if any.
func (e *Engine) Position() (Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pos == nil {
		return Position{}, false
	}
	return *e.pos, true
}

// Risk exposes the daily risk tracker for status reporting.
func (e *Engine) Risk() *RiskState { return e.risk }
