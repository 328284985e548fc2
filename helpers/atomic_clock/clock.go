// Package atomic_clock is lock free time stamp readable from any goroutine.
// Use for time accounting and stats. Do not use where time zone matters.
package atomic_clock

import (
	"sync/atomic"
	"time"
)

type Clock struct{ v int64 }

func (c *Clock) get() int64      { return atomic.LoadInt64(&c.v) }
func (c *Clock) set(new int64)   { atomic.StoreInt64(&c.v, new) }
func (c *Clock) IsZero() bool    { return c.get() == 0 }
func (c *Clock) Clear()          { c.set(0) }
func (c *Clock) UnixNano() int64 { return c.get() }
func (c *Clock) Unix() int64     { return c.get() / int64(time.Second) }

func (c *Clock) SetTime(t time.Time) { c.set(t.UnixNano()) }
func (c *Clock) SetNow()             { c.SetTime(time.Now()) }

// Time returns zero time.Time if not set.
func (c *Clock) Time() time.Time {
	v := c.get()
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

// Since returns duration from stored stamp to now, 0 if not set.
func (c *Clock) Since(now time.Time) time.Duration {
	v := c.get()
	if v == 0 {
		return 0
	}
	return time.Duration(now.UnixNano() - v)
}

func New(t time.Time) *Clock {
	c := &Clock{}
	c.SetTime(t)
	return c
}
