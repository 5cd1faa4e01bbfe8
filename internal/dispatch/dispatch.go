// Package dispatch fans trading events out to consumers over a bounded queue.
// Producers never block the tick path: a full queue drops after a short
// timeout instead of stalling ingestion.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"niftybot-go/internal/metrics"
)

// MessageType tags the payload class of a bridge message.
type MessageType string

const (
	TypeMarketData     MessageType = "market_data"
	TypeTrade          MessageType = "trade"
	TypeExit           MessageType = "exit"
	TypePositionUpdate MessageType = "position_update"
	TypeHeartbeat      MessageType = "heartbeat"
)

// Message is one event crossing the bridge. Data marshals as-is, so
// publishers pass JSON-friendly values.
type Message struct {
	Type MessageType `json:"type"`
	At   time.Time   `json:"at"`
	Data any         `json:"data,omitempty"`
}

// Bridge is a bounded single-queue fan-out. Publish is safe from any
// goroutine; one consumer drains via Consume.
type Bridge struct {
	queue     chan Message
	timeout   time.Duration
	heartbeat time.Duration
	log       zerolog.Logger
}

// New builds a bridge with the given queue capacity, publish timeout, and
// consumer heartbeat interval.
func New(capacity int, publishTimeout, heartbeat time.Duration, log zerolog.Logger) *Bridge {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Bridge{
		queue:     make(chan Message, capacity),
		timeout:   publishTimeout,
		heartbeat: heartbeat,
		log:       log,
	}
}

// Publish enqueues msg, waiting at most the publish timeout when the queue
// is full. Returns false when the message was dropped.
func (b *Bridge) Publish(msg Message) bool {
	if msg.At.IsZero() {
		msg.At = time.Now()
	}
	select {
	case b.queue <- msg:
		return true
	default:
	}
	if b.timeout <= 0 {
		b.drop(msg)
		return false
	}
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case b.queue <- msg:
		return true
	case <-timer.C:
		b.drop(msg)
		return false
	}
}

func (b *Bridge) drop(msg Message) {
	metrics.DispatchDroppedTotal.Inc()
	b.log.Warn().Str("type", string(msg.Type)).Msg("dispatch queue full, message dropped")
}

// Consume drains the queue into fn until ctx ends. When no message arrives
// within the heartbeat interval a synthetic heartbeat is delivered so
// downstream consumers can tell idle from dead.
func (b *Bridge) Consume(ctx context.Context, fn func(Message)) {
	hb := b.heartbeat
	if hb <= 0 {
		hb = time.Second
	}
	timer := time.NewTimer(hb)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.queue:
			fn(msg)
		case <-timer.C:
			fn(Message{Type: TypeHeartbeat, At: time.Now()})
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(hb)
	}
}

// Len reports the number of queued messages.
func (b *Bridge) Len() int { return len(b.queue) }
