// Package scheduler is the acquisition control loop: when to poll weather,
// how to back off on failures, what to show while data is missing or stale.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/weathermatrix/helpers"
	"github.com/temoto/weathermatrix/internal/network"
	"github.com/temoto/weathermatrix/internal/render"
	"github.com/temoto/weathermatrix/internal/weather"
	"github.com/temoto/weathermatrix/log2"
)

const (
	DefaultInterval       = 10 * time.Minute
	DefaultBackoffBase    = 5 * time.Second
	DefaultBackoffCeiling = 5 * time.Minute
	DefaultStale          = 30 * time.Minute
	DefaultTick           = 100 * time.Millisecond
)

type Fetcher interface {
	Fetch(ctx context.Context) (weather.Reading, error)
}

// Display is the subset of render.Renderer used by the loop.
type Display interface {
	Show(weather.Reading)
	ShowStatus(render.Status)
	Tick() error
	Replay()
	Busy() bool
}

// Button reports press since last call.
type Button interface {
	Pressed() bool
}

// Observer receives scheduler events, called on loop goroutine.
type Observer interface {
	StateChanged(Snapshot)
	Polled(r weather.Reading, err error, took time.Duration)
}

type Config struct {
	Interval       time.Duration
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
	Stale          time.Duration
	Tick           time.Duration
	DailyLimit     int
	TZ             int
}

// Snapshot is a copy of scheduler state safe to pass off-loop.
type Snapshot struct {
	State       State
	Attempt     int
	NextWake    time.Time
	LastSuccess time.Time
	LastError   string
	Status      render.Status
	Quota       int
}

type Scheduler struct { //nolint:maligned
	log     *log2.Log
	config  Config
	fetcher Fetcher
	display Display
	clock   helpers.Clock
	backoff helpers.Backoff
	quota   *Quota

	mu          sync.Mutex
	state       State
	attempt     int
	reading     weather.Reading
	lastSuccess time.Time
	nextWake    time.Time
	lastErr     error
	failStatus  render.Status
	// quota reset time already reported as exhausted
	quotaLogged time.Time

	observers []Observer
	button    Button
	OnPass    func()
}

func NewScheduler(log *log2.Log, c Config, fetcher Fetcher, display Display, clock helpers.Clock) (*Scheduler, error) {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = DefaultBackoffCeiling
	}
	if c.BackoffCeiling < c.BackoffBase {
		return nil, errors.NotValidf("backoff ceiling=%v < base=%v", c.BackoffCeiling, c.BackoffBase)
	}
	if c.Stale <= 0 {
		c.Stale = DefaultStale
	}
	if c.Stale < c.Interval {
		return nil, errors.NotValidf("stale=%v < interval=%v", c.Stale, c.Interval)
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	quota, err := NewQuota(c.DailyLimit, c.TZ, DefaultQuotaReset)
	if err != nil {
		return nil, errors.Trace(err)
	}
	self := &Scheduler{
		log:     log,
		config:  c,
		fetcher: fetcher,
		display: display,
		clock:   clock,
		backoff: helpers.Backoff{Min: c.BackoffBase, Max: c.BackoffCeiling, K: 2},
		quota:   quota,
		state:   StateIdle,
	}
	return self, nil
}

func (self *Scheduler) AddObserver(o Observer) { self.observers = append(self.observers, o) }
func (self *Scheduler) SetButton(b Button)     { self.button = b }

func (self *Scheduler) State() State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.state
}

func (self *Scheduler) Attempt() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.attempt
}

func (self *Scheduler) NextWake() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.nextWake
}

func (self *Scheduler) Reading() weather.Reading {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.reading
}

func (self *Scheduler) Snapshot() Snapshot {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.snapshotLocked()
}

func (self *Scheduler) snapshotLocked() Snapshot {
	s := Snapshot{
		State:       self.state,
		Attempt:     self.attempt,
		NextWake:    self.nextWake,
		LastSuccess: self.lastSuccess,
		Status:      self.failStatus,
		Quota:       self.quota.Remaining(self.clock.Now()),
	}
	if self.lastErr != nil {
		s.LastError = self.lastErr.Error()
	}
	return s
}

func (self *Scheduler) setState(new State) {
	self.mu.Lock()
	prev := self.state
	self.state = new
	snap := self.snapshotLocked()
	self.mu.Unlock()
	if prev != new {
		self.log.Debugf("scheduler state %s -> %s attempt=%d", prev, new, snap.Attempt)
	}
	for _, o := range self.observers {
		o.StateChanged(snap)
	}
}

// Step evaluates timing once and polls when due. Blocks only inside Fetch.
func (self *Scheduler) Step(ctx context.Context) {
	now := self.clock.Now()
	switch self.State() {
	case StateIdle, StateBackoff:
		if !self.due(now) {
			break
		}
		if !self.quota.Allow(now) {
			if self.State() == StateBackoff {
				self.setState(StateIdle)
			}
			if reset := self.quota.ResetAt(); !reset.Equal(self.quotaLogged) {
				self.quotaLogged = reset
				self.log.Infof("scheduler quota exhausted until %s", reset.Format(time.RFC3339))
			}
			break
		}
		self.poll(ctx, now)
		now = self.clock.Now()
	}
	self.updateDisplay(now)
}

func (self *Scheduler) due(now time.Time) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.nextWake.IsZero() || !now.Before(self.nextWake)
}

func (self *Scheduler) poll(ctx context.Context, start time.Time) {
	self.setState(StatePolling)
	self.quota.Use(start)
	if self.Reading().IsZero() {
		self.display.ShowStatus(render.StatusConnecting)
		if err := self.display.Tick(); err != nil {
			self.log.Error(errors.Annotate(err, "display"))
		}
	}

	r, err := self.fetcher.Fetch(ctx)
	end := self.clock.Now()
	for _, o := range self.observers {
		o.Polled(r, err, end.Sub(start))
	}
	if err != nil {
		self.failed(end, err)
		return
	}

	self.mu.Lock()
	// on-schedule poll keeps grid of anchor + k*interval
	anchor := start
	if !self.nextWake.IsZero() && self.attempt == 0 &&
		!start.Before(self.nextWake) && start.Before(self.nextWake.Add(self.config.Interval)) {
		anchor = self.nextWake
	}
	self.nextWake = anchor.Add(self.config.Interval)
	self.lastSuccess = end
	self.attempt = 0
	self.lastErr = nil
	self.failStatus = render.StatusNone
	self.reading = r
	self.mu.Unlock()

	self.setState(StateDisplaying)
	self.display.Show(r)
	self.log.Infof("weather %s next=%s", r.String(), self.NextWake().Format(time.RFC3339))
	self.setState(StateIdle)
}

func (self *Scheduler) failed(now time.Time, err error) {
	status := Classify(err)
	self.mu.Lock()
	self.attempt++
	attempt := self.attempt
	delay := self.backoff.Delay(attempt)
	self.nextWake = now.Add(delay)
	self.lastErr = err
	self.failStatus = status
	self.mu.Unlock()
	self.log.Errorf("poll attempt=%d retry in %v err=%v", attempt, delay, err)
	self.setState(StateBackoff)
}

// updateDisplay shows status glyph instead of missing or stale reading.
func (self *Scheduler) updateDisplay(now time.Time) {
	self.mu.Lock()
	r := self.reading
	status := self.failStatus
	state := self.state
	self.mu.Unlock()

	if !r.IsZero() && r.Age(now) <= self.config.Stale {
		return
	}
	if status == render.StatusNone {
		switch {
		case r.IsZero():
			status = render.StatusConnecting
		case !self.quota.Allow(now):
			status = render.StatusError
		default:
			// poll is due, next Step fetches
			status = render.StatusRetrying
		}
	}
	if state == StateIdle && !self.quota.Allow(now) {
		status = render.StatusError
	}
	if self.display.Busy() {
		return
	}
	self.display.ShowStatus(status)
}

// Classify maps poll error to status glyph category.
func Classify(err error) render.Status {
	if err == nil {
		return render.StatusNone
	}
	fe, ok := weather.AsFetchError(err)
	if !ok {
		return render.StatusRetrying
	}
	if fe.Kind == weather.FetchMalformed {
		return render.StatusError
	}
	le, ok := network.AsLinkError(fe.Err)
	if !ok {
		return render.StatusRetrying
	}
	switch le.Kind {
	case network.ErrorAuthRejected:
		return render.StatusError
	case network.ErrorHttpStatus:
		if le.Code >= 400 && le.Code < 500 {
			return render.StatusError
		}
	}
	return render.StatusRetrying
}

// Run is the cooperative loop: Step, animation Tick, sleep to next tick boundary.
// Returns when ctx is done or alive is stopping.
func (self *Scheduler) Run(ctx context.Context, a *alive.Alive) error {
	if a != nil {
		if !a.Add(1) {
			return nil
		}
		defer a.Done()
	}
	anchor := self.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if a != nil && !a.IsRunning() {
			return nil
		}
		self.Pass(ctx)
		now := self.clock.Now()
		next := helpers.NextTick(anchor, now, self.config.Tick)
		self.clock.Sleep(next.Sub(now))
	}
}

// Pass is one loop iteration without sleep.
func (self *Scheduler) Pass(ctx context.Context) {
	if !self.display.Busy() {
		self.Step(ctx)
		if self.button != nil && self.button.Pressed() {
			self.log.Debugf("button replay")
			self.display.Replay()
		}
	}
	if err := self.display.Tick(); err != nil {
		self.log.Error(errors.Annotate(err, "display"))
	}
	if self.OnPass != nil {
		self.OnPass()
	}
}
