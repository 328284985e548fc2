package helpers

import "time"

func IntSecondDefault(x int, def time.Duration) time.Duration {
	if x == 0 {
		return def
	}
	return time.Duration(x) * time.Second
}

func IntMillisecondDefault(x int, def time.Duration) time.Duration {
	if x == 0 {
		return def
	}
	return time.Duration(x) * time.Millisecond
}

// NextTick returns first point of grid `anchor + k*period` strictly after `now`.
// Used to keep fixed cadence loops from accumulating drift.
func NextTick(anchor, now time.Time, period time.Duration) time.Time {
	if period <= 0 {
		return now
	}
	if now.Before(anchor) {
		return anchor
	}
	k := now.Sub(anchor)/period + 1
	return anchor.Add(k * period)
}
