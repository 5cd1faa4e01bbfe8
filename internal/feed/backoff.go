package feed

import "time"

// backoff is the reconnect retry state: an attempt counter and the next delay.
// Delays double per attempt and never exceed the cap.
type backoff struct {
	base     time.Duration
	cap      time.Duration
	attempts int
}

func newBackoff(base, cap time.Duration) *backoff {
	if base <= 0 {
		base = 5 * time.Second
	}
	if cap < base {
		cap = base
	}
	return &backoff{base: base, cap: cap}
}

// next returns the delay for the current attempt and advances the counter.
func (b *backoff) next() time.Duration {
	d := b.cap
	if b.attempts < 30 { // avoid shifting into overflow
		if shifted := b.base << b.attempts; shifted < b.cap {
			d = shifted
		}
	}
	b.attempts++
	return d
}

// reset clears the counter after a successful connect.
func (b *backoff) reset() { b.attempts = 0 }
