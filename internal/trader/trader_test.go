package trader

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"niftybot-go/internal/broker"
	"niftybot-go/internal/config"
	"niftybot-go/internal/dispatch"
	"niftybot-go/internal/engine"
	"niftybot-go/internal/market"
	"niftybot-go/internal/store"
)

type fakeStrategy struct {
	entry engine.Decision
	exit  engine.Decision
}

func (f *fakeStrategy) Name() string                       { return "fake" }
func (f *fakeStrategy) Evaluate(engine.Snapshot) engine.Decision { return f.entry }
func (f *fakeStrategy) CheckExit(*engine.Position, engine.Snapshot) engine.Decision {
	return f.exit
}
func (f *fakeStrategy) CurrentGreeks() (market.Greeks, bool) {
	return market.Greeks{Delta: 0.5}, true
}

type fakeGateway struct {
	err    error
	orders []broker.OrderRequest
}

func (g *fakeGateway) PlaceOrder(_ context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	if g.err != nil {
		return broker.OrderResult{}, g.err
	}
	g.orders = append(g.orders, req)
	return broker.OrderResult{OrderID: fmt.Sprintf("ORD-%d", len(g.orders)), Status: "success"}, nil
}

func (g *fakeGateway) CancelOrder(context.Context, string) error { return nil }
func (g *fakeGateway) OrderStatus(_ context.Context, id string) (broker.OrderResult, error) {
	return broker.OrderResult{OrderID: id, Status: "complete"}, nil
}

type fakeStore struct {
	saveErr error
	entries []store.TradeRecord
	exits   []store.ExitRecord
}

func (s *fakeStore) SaveTrade(rec store.TradeRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.entries = append(s.entries, rec)
	return nil
}

func (s *fakeStore) UpdateTradeExit(rec store.ExitRecord) error {
	s.exits = append(s.exits, rec)
	return nil
}

func (s *fakeStore) Close() error { return nil }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Normalize()
	cfg.Strategy.Params.MinBars = 3
	cfg.Broker.OrderTimeoutSecs = 1
	return cfg
}

func newSession(t *testing.T, strat engine.Strategy, gw broker.Gateway, st store.Store) *Session {
	t.Helper()
	cfg := testConfig()
	p := engine.Params{
		MinBars:             cfg.Strategy.Params.MinBars,
		TrailingTriggerPct:  1,
		TrailingDistancePct: 1,
	}
	window, err := engine.NewWindow("09:15", "15:30", "15:15", "Asia/Kolkata")
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	eng := engine.New(
		strat,
		engine.NewRiskState(5000, 5),
		window,
		engine.Sizer{RiskPerTrade: 10_000, LotSize: 50, MinLots: 1, MaxLots: 3},
		p,
		zerolog.Nop(),
	)
	bridge := dispatch.New(64, time.Millisecond, time.Minute, zerolog.Nop())

	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	clock := func() time.Time { return time.Date(2026, 8, 24, 10, 30, 0, 0, loc) }
	return New(cfg, strat, eng, gw, st, bridge, zerolog.Nop(), WithClock(clock))
}

func tickAt(ts int64, price float64) market.Tick {
	return market.Tick{Instrument: "NSE_FO|47664", Timestamp: ts, Price: price, Qty: 1}
}

// warmUp feeds enough ticks to close the minimum bar history.
func warmUp(s *Session, price float64) {
	for i := int64(0); i < 4; i++ {
		s.HandleTick(context.Background(), tickAt(i*60_000, price))
	}
}

func buyDecision() engine.Decision {
	return engine.Decision{
		Action: engine.ActionBuy, Side: engine.SideLong, Symbol: "NSE_FO|47664",
		Entry: 100, StopLoss: 95, Target: 106,
	}
}

func TestSessionIgnoresTicksUntilStarted(t *testing.T) {
	s := newSession(t, &fakeStrategy{}, &fakeGateway{}, &fakeStore{})
	d := s.HandleTick(context.Background(), tickAt(0, 100))
	if d.Action != engine.ActionWait || d.Reason != "session inactive" {
		t.Fatalf("expected inactive wait, got %+v", d)
	}
}

func TestSessionEntryLifecycle(t *testing.T) {
	strat := &fakeStrategy{entry: buyDecision(), exit: engine.Decision{Action: engine.ActionHold}}
	gw := &fakeGateway{}
	st := &fakeStore{}
	s := newSession(t, strat, gw, st)
	s.Start()

	warmUp(s, 100)

	pos, ok := s.Position()
	if !ok {
		t.Fatal("expected an open position after the entry signal")
	}
	if pos.OrderID != "ORD-1" || pos.Quantity != 100 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if len(gw.orders) != 1 || gw.orders[0].Side != broker.SideBuy {
		t.Fatalf("unexpected orders %+v", gw.orders)
	}
	if len(st.entries) != 1 || st.entries[0].OrderID != "ORD-1" {
		t.Fatalf("entry not recorded: %+v", st.entries)
	}
	if st.entries[0].Strategy != "fake" {
		t.Fatalf("strategy tag missing: %+v", st.entries[0])
	}
}

func TestSessionExitLifecycle(t *testing.T) {
	strat := &fakeStrategy{entry: buyDecision(), exit: engine.Decision{Action: engine.ActionHold}}
	gw := &fakeGateway{}
	st := &fakeStore{}
	s := newSession(t, strat, gw, st)
	s.Start()
	warmUp(s, 100)

	strat.exit = engine.Decision{Action: engine.ActionExit, Reason: "ORDER_BOOK_REVERSAL"}
	d := s.HandleTick(context.Background(), tickAt(4*60_000, 101))
	if d.Action != engine.ActionExit {
		t.Fatalf("expected EXIT, got %+v", d)
	}

	if _, ok := s.Position(); ok {
		t.Fatal("expected position cleared after exit")
	}
	if len(gw.orders) != 2 || gw.orders[1].Side != broker.SideSell {
		t.Fatalf("expected a closing SELL, got %+v", gw.orders)
	}
	if len(st.exits) != 1 || st.exits[0].Reason != "ORDER_BOOK_REVERSAL" {
		t.Fatalf("exit not recorded: %+v", st.exits)
	}
	// Entry 100, exit 101: 1% on 100 quantity.
	if st.exits[0].PnL != 100 || st.exits[0].PnLPercent != 1 {
		t.Fatalf("exit pnl not recorded: %+v", st.exits[0])
	}
	if _, trades := s.eng.Risk().Snapshot(); trades != 1 {
		t.Fatalf("expected 1 completed trade, got %d", trades)
	}
}

func TestSessionKeepsPositionWhenExitOrderFails(t *testing.T) {
	strat := &fakeStrategy{entry: buyDecision(), exit: engine.Decision{Action: engine.ActionHold}}
	gw := &fakeGateway{}
	st := &fakeStore{}
	s := newSession(t, strat, gw, st)
	s.Start()
	warmUp(s, 100)

	gw.err = errors.New("broker down")
	strat.exit = engine.Decision{Action: engine.ActionExit, Reason: "ORDER_BOOK_REVERSAL"}
	s.HandleTick(context.Background(), tickAt(4*60_000, 101))
	if _, ok := s.Position(); !ok {
		t.Fatal("position must survive a failed exit order")
	}

	// Broker recovers, the next tick retries and closes.
	gw.err = nil
	s.HandleTick(context.Background(), tickAt(5*60_000, 101))
	if _, ok := s.Position(); ok {
		t.Fatal("expected position closed after retry")
	}
}

func TestSessionEntrySurvivesStoreFailure(t *testing.T) {
	strat := &fakeStrategy{entry: buyDecision(), exit: engine.Decision{Action: engine.ActionHold}}
	gw := &fakeGateway{}
	st := &fakeStore{saveErr: errors.New("disk full")}
	s := newSession(t, strat, gw, st)
	s.Start()
	warmUp(s, 100)

	if _, ok := s.Position(); !ok {
		t.Fatal("a live broker position must be kept even when recording fails")
	}
}

func TestSessionPublishesMarketDataEveryTick(t *testing.T) {
	strat := &fakeStrategy{entry: engine.Decision{Action: engine.ActionNoSignal}, exit: engine.Decision{Action: engine.ActionHold}}
	s := newSession(t, strat, &fakeGateway{}, &fakeStore{})
	s.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs := make(chan dispatch.Message, 64)
	go s.bridge.Consume(ctx, func(m dispatch.Message) { msgs <- m })

	s.HandleTick(context.Background(), tickAt(0, 100))
	s.HandleTick(context.Background(), tickAt(1000, 101))

	snapshots := 0
	deadline := time.After(2 * time.Second)
	for snapshots < 2 {
		select {
		case m := <-msgs:
			if m.Type != dispatch.TypeMarketData {
				continue
			}
			snap, ok := m.Data.(MarketSnapshot)
			if !ok {
				t.Fatalf("unexpected market data payload %T", m.Data)
			}
			if snap.Price != 100 && snap.Price != 101 {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
			snapshots++
		case <-deadline:
			t.Fatalf("expected one snapshot per tick, saw %d", snapshots)
		}
	}
}

func TestSessionPublishesPositionUpdatesWhileOpen(t *testing.T) {
	strat := &fakeStrategy{entry: buyDecision(), exit: engine.Decision{Action: engine.ActionHold}}
	s := newSession(t, strat, &fakeGateway{}, &fakeStore{})
	s.Start()
	warmUp(s, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs := make(chan dispatch.Message, 64)
	go s.bridge.Consume(ctx, func(m dispatch.Message) { msgs <- m })

	// 2% in profit on the open long.
	s.HandleTick(context.Background(), tickAt(4*60_000, 102))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-msgs:
			if m.Type != dispatch.TypePositionUpdate {
				continue
			}
			upd, ok := m.Data.(PositionUpdate)
			if !ok {
				t.Fatalf("unexpected position payload %T", m.Data)
			}
			// Skip updates queued at entry time; wait for the 102 mark.
			if upd.PnLPercent == 0 {
				continue
			}
			if upd.Entry != 100 || upd.PnL != 200 || upd.PnLPercent != 2 {
				t.Fatalf("unexpected mark-to-market %+v", upd)
			}
			return
		case <-deadline:
			t.Fatal("no marked-to-market position update arrived")
		}
	}
}

func TestSessionAbandonsEntryWhenOrderFails(t *testing.T) {
	strat := &fakeStrategy{entry: buyDecision(), exit: engine.Decision{Action: engine.ActionHold}}
	gw := &fakeGateway{err: errors.New("rejected")}
	st := &fakeStore{}
	s := newSession(t, strat, gw, st)
	s.Start()
	warmUp(s, 100)

	if _, ok := s.Position(); ok {
		t.Fatal("expected no position when the entry order fails")
	}
	if len(st.entries) != 0 {
		t.Fatalf("no trade should be recorded, got %+v", st.entries)
	}
}
