package feed

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"niftybot-go/internal/market"
)

// ErrDecode flags malformed frames. The tick is dropped, the loop continues.
var ErrDecode = errors.New("decode frame")

// Decoder turns one provider frame into zero or more ticks. The framing and
// schema are owned by the upstream provider, so decoding is injected.
type Decoder interface {
	Decode(frame []byte) ([]market.Tick, error)
}

// JSONDecoder decodes the provider's full-feed JSON frames. Each frame carries
// a map of instrument keys to market snapshots with last-trade, depth, greeks,
// open interest, and implied vol fields.
type JSONDecoder struct{}

// Decode extracts ticks from a frame, skipping instruments without a full feed.
func (JSONDecoder) Decode(frame []byte) ([]market.Tick, error) {
	if !gjson.ValidBytes(frame) {
		return nil, fmt.Errorf("%w: not valid json", ErrDecode)
	}
	feeds := gjson.GetBytes(frame, "feeds")
	if !feeds.Exists() {
		return nil, fmt.Errorf("%w: missing feeds object", ErrDecode)
	}

	var ticks []market.Tick
	feeds.ForEach(func(key, feed gjson.Result) bool {
		ff := feed.Get("fullFeed.marketFF")
		if !ff.Exists() {
			return true
		}
		ltpc := ff.Get("ltpc")
		tick := market.Tick{
			Instrument: key.String(),
			Timestamp:  ltpc.Get("ltt").Int(),
			Price:      ltpc.Get("ltp").Float(),
			Qty:        ltpc.Get("ltq").Float(),
			OI:         ff.Get("oi").Float(),
			IV:         ff.Get("iv").Float(),
		}
		if g := ff.Get("optionGreeks"); g.Exists() {
			tick.Greeks = market.Greeks{
				Delta: g.Get("delta").Float(),
				Gamma: g.Get("gamma").Float(),
				Theta: g.Get("theta").Float(),
				Vega:  g.Get("vega").Float(),
			}
			tick.HasGreeks = true
		}
		ff.Get("marketLevel.bidAskQuote").ForEach(func(_, lvl gjson.Result) bool {
			tick.Depth = append(tick.Depth, market.DepthLevel{
				BidQty:   lvl.Get("bidQ").Float(),
				AskQty:   lvl.Get("askQ").Float(),
				BidPrice: lvl.Get("bidP").Float(),
				AskPrice: lvl.Get("askP").Float(),
			})
			return len(tick.Depth) < 30
		})
		ticks = append(ticks, tick)
		return true
	})
	return ticks, nil
}
