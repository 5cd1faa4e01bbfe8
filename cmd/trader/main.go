// Binary trader runs the live trading loop: market-data feed in, decisions
// and orders out.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"niftybot-go/internal/broker"
	"niftybot-go/internal/config"
	"niftybot-go/internal/dispatch"
	"niftybot-go/internal/engine"
	"niftybot-go/internal/feed"
	"niftybot-go/internal/market"
	"niftybot-go/internal/metrics"
	"niftybot-go/internal/store"
	"niftybot-go/internal/trader"
	"niftybot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)
	if cfg.AccessToken == "" {
		log.Fatal().Msg("UPSTOX_ACCESS_TOKEN is not set")
	}

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	strat, err := engine.Build(cfg.Strategy.Mode, strategyParams(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("build strategy")
	}
	window, err := engine.NewWindow(cfg.Session.Open, cfg.Session.Close, cfg.Session.SquareOff, cfg.Session.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("build session window")
	}
	eng := engine.New(
		strat,
		engine.NewRiskState(cfg.Risk.MaxDailyLoss, cfg.Risk.MaxDailyTrades),
		window,
		engine.Sizer{
			RiskPerTrade: cfg.Risk.RiskPerTrade,
			LotSize:      cfg.Risk.LotSize,
			MinLots:      cfg.Risk.MinLots,
			MaxLots:      cfg.Risk.MaxLots,
		},
		strategyParams(cfg),
		util.Component(log, "engine"),
	)

	tradeLog, err := store.OpenJSONL(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open trade log")
	}
	defer tradeLog.Close()

	gateway := &broker.HTTPGateway{BaseURL: cfg.Broker.BaseURL, Token: cfg.AccessToken}
	bridge := dispatch.New(
		cfg.Dispatch.Capacity,
		time.Duration(cfg.Dispatch.PublishTimeoutMs)*time.Millisecond,
		time.Duration(cfg.Dispatch.HeartbeatMs)*time.Millisecond,
		util.Component(log, "dispatch"),
	)
	go bridge.Consume(ctx, func(msg dispatch.Message) {
		log.Debug().Str("type", string(msg.Type)).Time("at", msg.At).Msg("dispatch")
	})

	session := trader.New(cfg, strat, eng, gateway, tradeLog, bridge, util.Component(log, "trader"))
	session.Start()
	defer session.Close()

	client := feed.NewClient(
		&feed.HTTPAuthorizer{URL: cfg.Feed.AuthURL, Token: cfg.AccessToken},
		feed.JSONDecoder{},
		cfg.Feed.Instruments,
		cfg.Feed.Mode,
		util.Component(log, "feed"),
		feed.WithMaxTickAge(time.Duration(cfg.Feed.MaxTickAgeSecs)*time.Second),
		feed.WithReadTimeout(time.Duration(cfg.Feed.ReadTimeoutSecs)*time.Second),
		feed.WithBackoff(
			time.Duration(cfg.Feed.ReconnectBaseSecs)*time.Second,
			time.Duration(cfg.Feed.ReconnectCapSecs)*time.Second,
			cfg.Feed.MaxReconnectAttempts,
		),
	)
	ticks := make(chan market.Tick, 1024)

	go func() {
		if err := client.Run(ctx, ticks); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("feed stopped")
			cancel()
		}
	}()
	go client.WatchLiveness(ctx, 10*time.Second, time.Duration(cfg.Feed.ReadTimeoutSecs)*time.Second)

	log.Info().
		Str("strategy", strat.Name()).
		Strs("instruments", cfg.Feed.Instruments).
		Msg("trading loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			session.Stop()
			return
		case tk := <-ticks:
			session.HandleTick(ctx, tk)
		}
	}
}

func strategyParams(cfg *config.Config) engine.Params {
	p := cfg.Strategy.Params
	return engine.Params{
		MinBars:             p.MinBars,
		FuturesScoreEntry:   p.FuturesScoreEntry,
		OptionsScoreEntry:   p.OptionsScoreEntry,
		MinConfidence:       p.MinConfidence,
		PressureStrong:      p.PressureStrong,
		PressureModerate:    p.PressureModerate,
		PressureReversal:    p.PressureReversal,
		FuturesPressure:     p.FuturesPressure,
		DeltaDecayFraction:  p.DeltaDecayFraction,
		TrailingTriggerPct:  p.TrailingTriggerPct,
		TrailingDistancePct: p.TrailingDistancePct,
		StopATRMultiple:     p.StopATRMultiple,
		TargetATRMultiple:   p.TargetATRMultiple,
		MaxLossFraction:     p.MaxLossFraction,
		TargetProfitFrac:    p.TargetProfitFrac,
	}
}
