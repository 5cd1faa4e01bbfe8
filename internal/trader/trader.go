// Package trader wires the feed, depth analysis, bar aggregation, decision
// engine, order gateway, trade store, and dispatch bridge into one trading
// session for a single instrument stream.
package trader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"niftybot-go/internal/bars"
	"niftybot-go/internal/broker"
	"niftybot-go/internal/config"
	"niftybot-go/internal/depth"
	"niftybot-go/internal/dispatch"
	"niftybot-go/internal/engine"
	"niftybot-go/internal/market"
	"niftybot-go/internal/metrics"
	"niftybot-go/internal/store"
)

// MarketSnapshot is the per-tick market view published on the bridge.
type MarketSnapshot struct {
	Instrument  string    `json:"instrument"`
	Price       float64   `json:"price"`
	Pressure    float64   `json:"pressure"`
	SessionVWAP float64   `json:"session_vwap"`
	Delta       float64   `json:"delta,omitempty"`
	Gamma       float64   `json:"gamma,omitempty"`
	Theta       float64   `json:"theta,omitempty"`
	Vega        float64   `json:"vega,omitempty"`
	IV          float64   `json:"iv,omitempty"`
	At          time.Time `json:"at"`
}

// PositionUpdate carries the open position marked to the latest price.
type PositionUpdate struct {
	Instrument string  `json:"instrument"`
	Side       string  `json:"side"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	Target     float64 `json:"target"`
	Quantity   int     `json:"quantity"`
	PnL        float64 `json:"pnl"`
	PnLPercent float64 `json:"pnl_percent"`
}

// Session owns the per-tick pipeline. HandleTick runs on the ingestion
// goroutine; Active and Position snapshots are safe from elsewhere.
type Session struct {
	cfg     *config.Config
	strat   engine.Strategy
	eng     *engine.Engine
	agg     *bars.Aggregator
	weights depth.Weights
	gateway broker.Gateway
	store   store.Store
	bridge  *dispatch.Bridge
	log     zerolog.Logger
	now     func() time.Time

	barWindow int
	seq       atomic.Int64
	lastTick  atomic.Int64 // unix millis of the last handled tick

	mu     sync.Mutex
	active bool
}

// Option adjusts session construction.
type Option func(*Session)

// WithClock injects the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New assembles a session from already-built components.
func New(
	cfg *config.Config,
	strat engine.Strategy,
	eng *engine.Engine,
	gateway broker.Gateway,
	st store.Store,
	bridge *dispatch.Bridge,
	log zerolog.Logger,
	opts ...Option,
) *Session {
	window := cfg.Strategy.Params.MinBars
	if window < 30 {
		window = 30
	}
	s := &Session{
		cfg:       cfg,
		strat:     strat,
		eng:       eng,
		agg:       bars.New(cfg.Bars.WidthMs, cfg.Bars.MaxTicks, cfg.Bars.MaxBars),
		weights:   cfg.Depth,
		gateway:   gateway,
		store:     st,
		bridge:    bridge,
		log:       log,
		now:       time.Now,
		barWindow: window,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms the session and resets the daily risk totals.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.eng.Risk().Reset()
	s.log.Info().Str("strategy", s.strat.Name()).Msg("trading session started")
}

// Stop disarms the session. Ticks arriving afterwards are ignored.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.log.Info().Msg("trading session stopped")
}

// Active reports whether the session is accepting ticks.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// HandleTick runs the full pipeline for one tick and returns the decision.
func (s *Session) HandleTick(ctx context.Context, tick market.Tick) engine.Decision {
	if !s.Active() {
		return engine.Wait("session inactive")
	}
	s.lastTick.Store(s.now().UnixMilli())

	tick.Book = depth.Analyze(tick.Depth, s.weights)
	if closed := s.agg.Ingest(tick); closed != nil {
		metrics.BarsTotal.Inc()
		s.bridge.Publish(dispatch.Message{Type: dispatch.TypeMarketData, Data: closed})
	}

	snap := engine.Snapshot{
		Tick:        tick,
		Bars:        s.agg.Recent(s.barWindow),
		SessionVWAP: s.agg.SessionVWAP(s.barWindow),
		ATR:         s.agg.ATR(14),
		Now:         s.now(),
	}

	s.bridge.Publish(dispatch.Message{Type: dispatch.TypeMarketData, Data: MarketSnapshot{
		Instrument:  tick.Instrument,
		Price:       tick.Price,
		Pressure:    tick.Book.PressureScore,
		SessionVWAP: snap.SessionVWAP,
		Delta:       tick.Greeks.Delta,
		Gamma:       tick.Greeks.Gamma,
		Theta:       tick.Greeks.Theta,
		Vega:        tick.Greeks.Vega,
		IV:          tick.IV,
		At:          s.now(),
	}})

	d := s.eng.OnTick(snap)
	switch d.Action {
	case engine.ActionBuy, engine.ActionSell:
		s.enter(ctx, d)
	case engine.ActionExit:
		s.exit(ctx, d)
	}

	// Keep downstream consumers marked to market while a position is open.
	if pos, ok := s.eng.Position(); ok {
		pnl, pct := pos.PnL(tick.Price)
		s.bridge.Publish(dispatch.Message{Type: dispatch.TypePositionUpdate, Data: PositionUpdate{
			Instrument: pos.Instrument,
			Side:       string(pos.Side),
			Entry:      pos.Entry,
			StopLoss:   pos.StopLoss,
			Target:     pos.Target,
			Quantity:   pos.Quantity,
			PnL:        pnl,
			PnLPercent: pct,
		}})
	}
	return d
}

// enter places the entry order and, on fill, records and confirms the
// position. A store failure keeps the position and is only logged.
func (s *Session) enter(ctx context.Context, d engine.Decision) {
	side := broker.SideBuy
	if d.Action == engine.ActionSell {
		side = broker.SideSell
	}
	req := broker.OrderRequest{
		Instrument: d.Symbol,
		Side:       side,
		Quantity:   d.Quantity,
		OrderType:  broker.TypeMarket,
		Product:    "I",
		Validity:   "DAY",
		Tag:        s.strat.Name(),
	}

	octx, cancel := context.WithTimeout(ctx, s.orderTimeout())
	defer cancel()
	res, err := s.gateway.PlaceOrder(octx, req)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", d.Symbol).Msg("entry order failed")
		return
	}

	now := s.now()
	tradeID := fmt.Sprintf("T%s-%d", now.Format("20060102"), s.seq.Add(1))
	if err := s.store.SaveTrade(store.TradeRecord{
		TradeID:  tradeID,
		Symbol:   d.Symbol,
		Side:     string(d.Side),
		Entry:    d.Entry,
		StopLoss: d.StopLoss,
		Target:   d.Target,
		Quantity: d.Quantity,
		OrderID:  res.OrderID,
		Strategy: s.strat.Name(),
		OpenedAt: now,
	}); err != nil {
		// The position is live at the broker; losing the record must not
		// abandon it.
		s.log.Error().Err(err).Str("trade_id", tradeID).Msg("trade entry not recorded")
		metrics.TradesUnrecordedTotal.Inc()
	}

	s.eng.ConfirmEntry(d, res.OrderID, tradeID, now)
	s.bridge.Publish(dispatch.Message{Type: dispatch.TypeTrade, Data: d})
}

// exit places the closing order. On broker failure the position is kept so
// the next tick retries the exit.
func (s *Session) exit(ctx context.Context, d engine.Decision) {
	pos, ok := s.eng.Position()
	if !ok {
		return
	}
	side := broker.SideSell
	if !pos.Long() {
		side = broker.SideBuy
	}
	req := broker.OrderRequest{
		Instrument: pos.Instrument,
		Side:       side,
		Quantity:   pos.Quantity,
		OrderType:  broker.TypeMarket,
		Product:    "I",
		Validity:   "DAY",
		Tag:        s.strat.Name(),
	}

	octx, cancel := context.WithTimeout(ctx, s.orderTimeout())
	defer cancel()
	if _, err := s.gateway.PlaceOrder(octx, req); err != nil {
		s.log.Error().Err(err).Str("symbol", pos.Instrument).Msg("exit order failed, will retry")
		return
	}

	if err := s.store.UpdateTradeExit(store.ExitRecord{
		TradeID:    pos.TradeID,
		ExitPrice:  d.ExitPrice,
		PnL:        d.PnL,
		PnLPercent: d.PnLPercent,
		Reason:     d.Reason,
		ClosedAt:   s.now(),
	}); err != nil {
		s.log.Error().Err(err).Str("trade_id", pos.TradeID).Msg("trade exit not recorded")
		metrics.TradesUnrecordedTotal.Inc()
	}

	s.eng.ConfirmExit(d)
	s.bridge.Publish(dispatch.Message{Type: dispatch.TypeExit, Data: d})
}

func (s *Session) orderTimeout() time.Duration {
	return time.Duration(s.cfg.Broker.OrderTimeoutSecs) * time.Second
}

// Close flushes the trailing partial bar so the last interval of the day is
// not lost on shutdown.
func (s *Session) Close() {
	if bar := s.agg.Flush(); bar != nil {
		metrics.BarsTotal.Inc()
		s.bridge.Publish(dispatch.Message{Type: dispatch.TypeMarketData, Data: bar})
	}
}

// Position exposes the engine's open position for status reporting.
func (s *Session) Position() (engine.Position, bool) { return s.eng.Position() }

// LastTickAt reports when the last tick was handled. Zero before the first
// tick. Safe from any goroutine.
func (s *Session) LastTickAt() time.Time {
	ms := s.lastTick.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
