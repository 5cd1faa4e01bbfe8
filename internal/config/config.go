// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"niftybot-go/internal/depth"
)

// App captures process-wide runtime settings.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Feed configures the market-data websocket client.
type Feed struct {
	AuthURL              string   `yaml:"auth_url"`
	Mode                 string   `yaml:"mode"`
	Instruments          []string `yaml:"instruments"`
	MaxTickAgeSecs       int      `yaml:"max_tick_age_secs"`
	ReadTimeoutSecs      int      `yaml:"read_timeout_secs"`
	ReconnectBaseSecs    int      `yaml:"reconnect_base_secs"`
	ReconnectCapSecs     int      `yaml:"reconnect_cap_secs"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
}

// Bars configures the tick-to-bar aggregation.
type Bars struct {
	WidthMs  int64 `yaml:"width_ms"`
	MaxTicks int   `yaml:"max_ticks"`
	MaxBars  int   `yaml:"max_bars"`
}

// Strategy specifies which decision variant is active along with tunable knobs.
type Strategy struct {
	Mode   string `yaml:"mode"` // "futures" or "options"
	Params StrategyParams
}

// StrategyParams groups the thresholds both strategy variants score against.
type StrategyParams struct {
	MinBars             int     `yaml:"min_bars"`
	FuturesScoreEntry   float64 `yaml:"futures_score_entry"`
	OptionsScoreEntry   float64 `yaml:"options_score_entry"`
	MinConfidence       float64 `yaml:"min_confidence"`
	PressureStrong      float64 `yaml:"pressure_strong"`
	PressureModerate    float64 `yaml:"pressure_moderate"`
	PressureReversal    float64 `yaml:"pressure_reversal"`
	FuturesPressure     float64 `yaml:"futures_pressure"`
	DeltaDecayFraction  float64 `yaml:"delta_decay_fraction"`
	TrailingTriggerPct  float64 `yaml:"trailing_trigger_pct"`
	TrailingDistancePct float64 `yaml:"trailing_distance_pct"`
	StopATRMultiple     float64 `yaml:"stop_atr_multiple"`
	TargetATRMultiple   float64 `yaml:"target_atr_multiple"`
	MaxLossFraction     float64 `yaml:"max_loss_fraction"`   // options stop, fraction of premium
	TargetProfitFrac    float64 `yaml:"target_profit_frac"`  // options target, fraction of premium
}

// Risk encodes the daily guard-rails and position sizing inputs.
type Risk struct {
	MaxDailyLoss   float64 `yaml:"max_daily_loss"`
	MaxDailyTrades int     `yaml:"max_daily_trades"`
	RiskPerTrade   float64 `yaml:"risk_per_trade"`
	LotSize        int     `yaml:"lot_size"`
	MinLots        int     `yaml:"min_lots"`
	MaxLots        int     `yaml:"max_lots"`
}

// Session bounds the trading day. Times are "HH:MM" in the configured zone.
type Session struct {
	Open      string `yaml:"open"`
	Close     string `yaml:"close"`
	SquareOff string `yaml:"square_off"`
	Timezone  string `yaml:"timezone"`
}

// Dispatch tunes the bounded fan-out bridge.
type Dispatch struct {
	Capacity         int `yaml:"capacity"`
	PublishTimeoutMs int `yaml:"publish_timeout_ms"`
	HeartbeatMs      int `yaml:"heartbeat_ms"`
}

// Broker points at the order gateway.
type Broker struct {
	BaseURL          string `yaml:"base_url"`
	OrderTimeoutSecs int    `yaml:"order_timeout_secs"`
}

// Store configures the trade record sink.
type Store struct {
	Path string `yaml:"path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App           `yaml:"app"`
	Feed     Feed          `yaml:"feed"`
	Depth    depth.Weights `yaml:"depth"`
	Bars     Bars          `yaml:"bars"`
	Strategy Strategy      `yaml:"strategy"`
	Risk     Risk          `yaml:"risk"`
	Session  Session       `yaml:"session"`
	Dispatch Dispatch      `yaml:"dispatch"`
	Broker   Broker        `yaml:"broker"`
	Store    Store         `yaml:"store"`

	// AccessToken comes from the environment, never from YAML.
	AccessToken string `yaml:"-"`
}

// Load reads a YAML file, hydrates a Config, applies defaults, and overlays
// the access token from the environment (a .env file is honored when present).
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	_ = godotenv.Load()
	cfg.AccessToken = os.Getenv("UPSTOX_ACCESS_TOKEN")
	return &cfg, nil
}

// Normalize fills zero-valued knobs with their defaults.
func (c *Config) Normalize() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9100"
	}
	if c.Feed.Mode == "" {
		c.Feed.Mode = "full_d30"
	}
	if c.Feed.MaxTickAgeSecs <= 0 {
		c.Feed.MaxTickAgeSecs = 5
	}
	if c.Feed.ReadTimeoutSecs <= 0 {
		c.Feed.ReadTimeoutSecs = 30
	}
	if c.Feed.ReconnectBaseSecs <= 0 {
		c.Feed.ReconnectBaseSecs = 5
	}
	if c.Feed.ReconnectCapSecs <= 0 {
		c.Feed.ReconnectCapSecs = 300
	}
	if c.Feed.MaxReconnectAttempts <= 0 {
		c.Feed.MaxReconnectAttempts = 10
	}
	if c.Depth == (depth.Weights{}) {
		c.Depth = depth.DefaultWeights
	}
	if c.Bars.WidthMs <= 0 {
		c.Bars.WidthMs = 60_000
	}
	if c.Bars.MaxTicks <= 0 {
		c.Bars.MaxTicks = 10_000
	}
	if c.Bars.MaxBars <= 0 {
		c.Bars.MaxBars = 500
	}
	if c.Strategy.Mode == "" {
		c.Strategy.Mode = "futures"
	}
	p := &c.Strategy.Params
	if p.MinBars <= 0 {
		p.MinBars = 50
	}
	if p.FuturesScoreEntry <= 0 {
		p.FuturesScoreEntry = 50
	}
	if p.OptionsScoreEntry <= 0 {
		p.OptionsScoreEntry = 60
	}
	if p.MinConfidence <= 0 {
		p.MinConfidence = 60
	}
	if p.PressureStrong <= 0 {
		p.PressureStrong = 50
	}
	if p.PressureModerate <= 0 {
		p.PressureModerate = 30
	}
	if p.PressureReversal <= 0 {
		p.PressureReversal = 40
	}
	if p.FuturesPressure <= 0 {
		p.FuturesPressure = 40
	}
	if p.DeltaDecayFraction <= 0 {
		p.DeltaDecayFraction = 0.7
	}
	if p.TrailingTriggerPct <= 0 {
		p.TrailingTriggerPct = 1
	}
	if p.TrailingDistancePct <= 0 {
		p.TrailingDistancePct = 1
	}
	if p.StopATRMultiple <= 0 {
		p.StopATRMultiple = 1.5
	}
	if p.TargetATRMultiple <= 0 {
		p.TargetATRMultiple = 3
	}
	if p.MaxLossFraction <= 0 {
		p.MaxLossFraction = 0.5
	}
	if p.TargetProfitFrac <= 0 {
		p.TargetProfitFrac = 1.0
	}
	if c.Risk.MaxDailyLoss <= 0 {
		c.Risk.MaxDailyLoss = 5000
	}
	if c.Risk.MaxDailyTrades <= 0 {
		c.Risk.MaxDailyTrades = 5
	}
	if c.Risk.RiskPerTrade <= 0 {
		c.Risk.RiskPerTrade = 10_000
	}
	if c.Risk.LotSize <= 0 {
		c.Risk.LotSize = 50
	}
	if c.Risk.MinLots <= 0 {
		c.Risk.MinLots = 1
	}
	if c.Risk.MaxLots <= 0 {
		c.Risk.MaxLots = 3
	}
	if c.Session.Open == "" {
		c.Session.Open = "09:15"
	}
	if c.Session.Close == "" {
		c.Session.Close = "15:30"
	}
	if c.Session.SquareOff == "" {
		c.Session.SquareOff = "15:15"
	}
	if c.Session.Timezone == "" {
		c.Session.Timezone = "Asia/Kolkata"
	}
	if c.Dispatch.Capacity <= 0 {
		c.Dispatch.Capacity = 1000
	}
	if c.Dispatch.PublishTimeoutMs <= 0 {
		c.Dispatch.PublishTimeoutMs = 500
	}
	if c.Dispatch.HeartbeatMs <= 0 {
		c.Dispatch.HeartbeatMs = 1000
	}
	if c.Broker.OrderTimeoutSecs <= 0 {
		c.Broker.OrderTimeoutSecs = 5
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/trades.jsonl"
	}
}

// Validate catches configuration that would silently misbehave at runtime.
func (c *Config) Validate() error {
	if err := c.Depth.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Strategy.Mode {
	case "futures", "options":
	default:
		return fmt.Errorf("config: unknown strategy mode %q", c.Strategy.Mode)
	}
	return nil
}
