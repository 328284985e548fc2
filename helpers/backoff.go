package helpers

import (
	"time"
)

// Limited exponential backoff for retry delays.
// Delay(n) = Min * K^(n-1), limited to Max, for attempt n >= 1.
// Stateless: caller owns the attempt counter, so the delay for any attempt
// can be computed again without side effects.
type Backoff struct {
	Min time.Duration
	Max time.Duration
	K   float64       // default=2
	Res time.Duration // delay resolution for nice logs, default=1ms
}

func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	k := b.K
	if k < 1 {
		k = 2
	}
	d := b.Min
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * k)
		if b.Max != 0 && d >= b.Max {
			break
		}
	}
	return b.limit(d)
}

// Ceiling returns the smallest attempt number whose delay equals Max.
// Further attempts do not increase delay.
func (b *Backoff) Ceiling() int {
	if b.Max == 0 || b.Min <= 0 {
		return 0
	}
	n := 1
	for b.Delay(n) < b.limit(b.Max) {
		n++
	}
	return n
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if b.Max != 0 && d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}
