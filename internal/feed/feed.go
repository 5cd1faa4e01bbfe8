// Package feed maintains the streaming market-data connection: authorization,
// subscription, frame decoding, liveness, and bounded-backoff reconnects.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"niftybot-go/internal/market"
	"niftybot-go/internal/metrics"
)

// ErrReconnectExhausted is returned after the configured number of consecutive
// connect failures. The owning process decides what happens next.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// ErrStaleTick flags ticks older than the staleness window at arrival.
var ErrStaleTick = errors.New("stale tick")

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// Authorizer obtains the time-boxed websocket endpoint before each connect.
type Authorizer interface {
	Authorize(ctx context.Context) (string, error)
}

// HTTPAuthorizer calls the provider's feed-authorize endpoint with a bearer token.
type HTTPAuthorizer struct {
	URL    string
	Token  string
	Client *http.Client
}

// Authorize fetches the authorized redirect URI for the websocket dial.
func (a *HTTPAuthorizer) Authorize(ctx context.Context) (string, error) {
	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return "", fmt.Errorf("build authorize request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.Token)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("authorize request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read authorize response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("authorize status %d: %s", resp.StatusCode, body)
	}
	uri := gjson.GetBytes(body, "data.authorized_redirect_uri").String()
	if uri == "" {
		return "", fmt.Errorf("authorize response missing redirect uri")
	}
	return uri, nil
}

type subscribeMessage struct {
	GUID   string        `json:"guid"`
	Method string        `json:"method"`
	Data   subscribeData `json:"data"`
}

type subscribeData struct {
	Mode           string   `json:"mode"`
	InstrumentKeys []string `json:"instrumentKeys"`
}

// Client is the streaming feed client. Run owns the receive loop; a second
// goroutine may watch liveness through LastReceived only.
type Client struct {
	auth        Authorizer
	dec         Decoder
	instruments []string
	mode        string
	log         zerolog.Logger

	maxTickAge  time.Duration
	readTimeout time.Duration
	backoffBase time.Duration
	backoffCap  time.Duration
	maxAttempts int
	now         func() time.Time

	lastReceived atomic.Int64 // unix millis of the last frame, heartbeat reads only
}

// Option configures Client construction parameters.
type Option func(*Client)

// WithMaxTickAge overrides the staleness window for arriving ticks.
func WithMaxTickAge(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxTickAge = d
		}
	}
}

// WithReadTimeout overrides the receive deadline that triggers a ping.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithBackoff overrides the reconnect delay curve.
func WithBackoff(base, cap time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		if base > 0 {
			c.backoffBase = base
		}
		if cap > 0 {
			c.backoffCap = cap
		}
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
	}
}

// WithClock injects the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a feed client for the given instruments and feed mode.
func NewClient(auth Authorizer, dec Decoder, instruments []string, mode string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		auth:        auth,
		dec:         dec,
		instruments: instruments,
		mode:        mode,
		log:         log,
		maxTickAge:  5 * time.Second,
		readTimeout: 30 * time.Second,
		backoffBase: 5 * time.Second,
		backoffCap:  300 * time.Second,
		maxAttempts: 10,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LastReceived reports when the last frame arrived. Zero until the first frame.
func (c *Client) LastReceived() time.Time {
	ms := c.lastReceived.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Run connects, subscribes, and pushes decoded ticks onto out until the
// context is canceled or reconnect attempts are exhausted. Cancellation stops
// the receive loop within one read timeout.
func (c *Client) Run(ctx context.Context, out chan<- market.Tick) error {
	bo := newBackoff(c.backoffBase, c.backoffCap)
	failures := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		subscribed, err := c.consume(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		if subscribed {
			// The connection was live before it dropped; restart the curve.
			failures = 0
			bo.reset()
		}
		failures++
		if failures >= c.maxAttempts {
			return fmt.Errorf("%w after %d failures: %v", ErrReconnectExhausted, failures, err)
		}
		delay := bo.next()
		c.log.Warn().Err(err).Dur("retry_in", delay).Int("failures", failures).Msg("feed disconnected, reconnecting")
		metrics.ReconnectsTotal.Inc()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) consume(ctx context.Context, out chan<- market.Tick) (subscribed bool, err error) {
	wsURL, err := c.auth.Authorize(ctx)
	if err != nil {
		return false, fmt.Errorf("authorize feed: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop promptly on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sub := subscribeMessage{
		GUID:   "trading_system",
		Method: "sub",
		Data:   subscribeData{Mode: c.mode, InstrumentKeys: c.instruments},
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return false, fmt.Errorf("marshal subscribe: %w", err)
	}
	conn.SetWriteDeadline(c.now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	c.log.Info().Int("instruments", len(c.instruments)).Str("mode", c.mode).Msg("feed subscribed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(c.now().Add(c.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(c.now().Add(c.readTimeout))
		return nil
	})

	// Application pings keep the read deadline honest: if the peer answers,
	// the pong handler extends the deadline; if not, the read times out and
	// the reconnect path takes over.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		interval := c.readTimeout / 2
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, c.now().Add(writeTimeout)); err != nil {
					c.log.Warn().Err(err).Msg("feed ping failed")
					return
				}
			case <-pingDone:
				return
			}
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, fmt.Errorf("read frame: %w", err)
		}
		c.lastReceived.Store(c.now().UnixMilli())

		ticks, derr := c.dec.Decode(frame)
		if derr != nil {
			c.log.Warn().Err(derr).Msg("dropping undecodable frame")
			metrics.TicksDroppedTotal.WithLabelValues("decode").Inc()
			continue
		}
		for _, tick := range ticks {
			if !c.forward(ctx, tick, out) {
				return true, nil
			}
		}
	}
}

// forward validates, staleness-checks, and emits one tick. Returns false when
// the context ended.
func (c *Client) forward(ctx context.Context, tick market.Tick, out chan<- market.Tick) bool {
	if err := tick.Validate(); err != nil {
		c.log.Warn().Err(err).Str("instrument", tick.Instrument).Msg("dropping invalid tick")
		metrics.TicksDroppedTotal.WithLabelValues("invalid").Inc()
		return true
	}
	if age := c.now().Sub(tick.Time()); age > c.maxTickAge {
		c.log.Warn().
			Err(fmt.Errorf("%w: %s old", ErrStaleTick, age)).
			Str("instrument", tick.Instrument).
			Msg("dropping stale tick")
		metrics.TicksDroppedTotal.WithLabelValues("stale").Inc()
		return true
	}
	select {
	case out <- tick:
		metrics.TicksTotal.WithLabelValues(tick.Instrument).Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

// WatchLiveness logs when no frame has arrived within staleAfter. It only
// reads the atomic last-received stamp, so it is safe beside the receive loop.
func (c *Client) WatchLiveness(ctx context.Context, every, staleAfter time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			last := c.LastReceived()
			if last.IsZero() {
				continue
			}
			if silence := c.now().Sub(last); silence > staleAfter {
				c.log.Warn().Dur("silence", silence).Msg("no market data received")
			}
		case <-ctx.Done():
			return
		}
	}
}
