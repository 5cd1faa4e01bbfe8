package bars

import "niftybot-go/internal/market"

// tickRing is a fixed-capacity buffer over ticks with O(1) oldest eviction.
type tickRing struct {
	buf  []market.Tick
	head int // index of the oldest element
	size int
}

func newTickRing(capacity int) *tickRing {
	return &tickRing{buf: make([]market.Tick, capacity)}
}

func (r *tickRing) push(t market.Tick) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = t
		r.size++
		return
	}
	r.buf[r.head] = t
	r.head = (r.head + 1) % len(r.buf)
}

func (r *tickRing) len() int { return r.size }

func (r *tickRing) last() (market.Tick, bool) {
	if r.size == 0 {
		return market.Tick{}, false
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)], true
}

// barRing mirrors tickRing for closed bars, kept in close order.
type barRing struct {
	buf  []Bar
	head int
	size int
}

func newBarRing(capacity int) *barRing {
	return &barRing{buf: make([]Bar, capacity)}
}

func (r *barRing) push(b Bar) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = b
		r.size++
		return
	}
	r.buf[r.head] = b
	r.head = (r.head + 1) % len(r.buf)
}

func (r *barRing) len() int { return r.size }

func (r *barRing) last() (Bar, bool) {
	if r.size == 0 {
		return Bar{}, false
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)], true
}

// recent copies up to n trailing bars in chronological order.
func (r *barRing) recent(n int) []Bar {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]Bar, n)
	start := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+start+i)%len(r.buf)]
	}
	return out
}
