package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"
	"github.com/temoto/weathermatrix/hardware/matrix"
	"github.com/temoto/weathermatrix/helpers"
	"github.com/temoto/weathermatrix/internal/network"
	"github.com/temoto/weathermatrix/internal/render"
	"github.com/temoto/weathermatrix/internal/weather"
	"github.com/temoto/weathermatrix/log2"
)

var t0 = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	clock *helpers.FakeClock
	took  time.Duration
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (weather.Reading, error) {
	f.calls++
	f.clock.Advance(f.took)
	if f.err != nil {
		return weather.Reading{}, f.err
	}
	now := f.clock.Now()
	r := weather.Reading{
		Temperature: 18.3,
		Condition:   weather.ConditionRain,
		Icon:        weather.IconRain,
		Label:       "Rain",
		Observed:    now,
		Local:       now,
		Fetched:     now,
	}
	return r, nil
}

type nullDevice struct{ writes int }

func (d *nullDevice) Write(matrix.Frame) error { d.writes++; return nil }

type recordObserver struct {
	states []State
	polls  int
	errs   int
}

func (o *recordObserver) StateChanged(s Snapshot) { o.states = append(o.states, s.State) }
func (o *recordObserver) Polled(r weather.Reading, err error, took time.Duration) {
	o.polls++
	if err != nil {
		o.errs++
	}
}

type testEnv struct {
	clock    *helpers.FakeClock
	fetcher  *fakeFetcher
	renderer *render.Renderer
	sched    *Scheduler
}

func newTestEnv(t testing.TB, c Config) *testEnv {
	if c.Interval == 0 {
		c.Interval = 10 * time.Minute
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.BackoffCeiling == 0 {
		c.BackoffCeiling = 5 * time.Minute
	}
	log := log2.NewTest(t, log2.LDebug)
	clock := helpers.NewFakeClock(t0)
	env := &testEnv{
		clock:    clock,
		fetcher:  &fakeFetcher{clock: clock},
		renderer: render.NewRenderer(log, &nullDevice{}, render.Config{}),
	}
	var err error
	env.sched, err = NewScheduler(log, c, env.fetcher, env.renderer, clock)
	require.NoError(t, err)
	return env
}

// wake moves clock to scheduled poll time.
func wake(clock *helpers.FakeClock, s *Scheduler) {
	if w := s.NextWake(); !w.IsZero() {
		clock.Set(w)
	}
}

func linkFetchError(kind network.ErrorKind, code int) error {
	return weather.FetchError{Kind: weather.FetchNetwork, Err: network.LinkError{Kind: kind, Code: code}}
}

func TestFirstPoll(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	obs := &recordObserver{}
	env.sched.AddObserver(obs)
	env.sched.Step(context.Background())

	assert.Equal(t, 1, env.fetcher.calls)
	assert.Equal(t, StateIdle, env.sched.State())
	assert.Equal(t, t0.Add(10*time.Minute), env.sched.NextWake())
	assert.Equal(t, render.ModeReading, env.renderer.Mode())
	assert.Equal(t, []State{StatePolling, StateDisplaying, StateIdle}, obs.states)
	assert.Equal(t, 1, obs.polls)

	env.clock.Advance(9 * time.Minute)
	env.sched.Step(context.Background())
	assert.Equal(t, 1, env.fetcher.calls, "not due yet")
}

func TestDrift(t *testing.T) {
	t.Parallel()

	interval := 10 * time.Minute
	env := newTestEnv(t, Config{Interval: interval})
	env.fetcher.took = 2 * time.Second
	ctx := context.Background()
	env.sched.Step(ctx)
	require.Equal(t, t0.Add(interval), env.sched.NextWake())

	for i := 1; i <= 6; i++ {
		// loop overruns poll time by varying amount
		env.clock.Set(env.sched.NextWake().Add(time.Duration(i) * 7 * time.Second))
		env.sched.Step(ctx)
		assert.Equal(t, i+1, env.fetcher.calls)
		assert.Equal(t, t0.Add(time.Duration(i+1)*interval), env.sched.NextWake(), "poll=%d", i)
		// reported success is real fetch end, grid is kept separately
		assert.Equal(t, env.clock.Now(), env.sched.Snapshot().LastSuccess, "poll=%d", i)
	}
}

func TestDriftOverrunInterval(t *testing.T) {
	t.Parallel()

	interval := 10 * time.Minute
	env := newTestEnv(t, Config{Interval: interval})
	env.fetcher.took = 2 * time.Second
	ctx := context.Background()
	env.sched.Step(ctx)
	require.Equal(t, t0.Add(interval), env.sched.NextWake())

	// loop stalled longer than whole interval, grid restarts at poll start
	start := t0.Add(interval + 12*time.Minute)
	env.clock.Set(start)
	env.sched.Step(ctx)
	require.Equal(t, 2, env.fetcher.calls)
	assert.Equal(t, start.Add(interval), env.sched.NextWake())
	assert.Equal(t, start.Add(env.fetcher.took), env.sched.Snapshot().LastSuccess)

	for i := 1; i <= 4; i++ {
		env.clock.Set(env.sched.NextWake().Add(time.Duration(i) * 9 * time.Second))
		env.sched.Step(ctx)
		assert.Equal(t, i+2, env.fetcher.calls)
		assert.Equal(t, start.Add(time.Duration(i+1)*interval), env.sched.NextWake(), "poll=%d", i)
	}
}

func TestStaleWithoutFailure(t *testing.T) {
	t.Parallel()

	interval := 10 * time.Minute
	env := newTestEnv(t, Config{Interval: interval, Stale: interval})
	ctx := context.Background()
	env.sched.Step(ctx)

	// healthy between polls
	env.clock.Advance(interval - time.Second)
	env.sched.Step(ctx)
	assert.Equal(t, 1, env.fetcher.calls)
	assert.Equal(t, StateIdle, env.sched.State())
	assert.Equal(t, render.ModeReading, env.renderer.Mode())

	// reading went stale with quota left and no failure
	env.sched.updateDisplay(env.clock.Now().Add(2 * time.Second))
	assert.Equal(t, render.ModeStatus, env.renderer.Mode())
	assert.Equal(t, render.StatusRetrying, env.renderer.Status())
}

func TestBackoffConnectTimeouts(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	clock := helpers.NewFakeClock(t0)
	radio := &network.MockRadio{Result: network.RadioConnecting}
	session := network.NewSession(log, network.Config{
		SSID:           "ssid",
		Password:       "pass",
		ConnectTimeout: time.Second,
		PollStep:       250 * time.Millisecond,
	}, radio, clock, &helpers.MockHTTP{})
	client := weather.NewClient(log, weather.Config{
		URL:    "http://weather.test/data",
		APIKey: "X",
		Lat:    51.5,
		Lng:    -0.12,
	}, session, clock)
	renderer := render.NewRenderer(log, &nullDevice{}, render.Config{})
	base := 5 * time.Second
	s, err := NewScheduler(log, Config{BackoffBase: base, BackoffCeiling: time.Minute}, client, renderer, clock)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		wake(clock, s)
		s.Step(ctx)
		assert.Equal(t, StateBackoff, s.State())
		assert.Equal(t, i, s.Attempt())
	}
	assert.Equal(t, base*4, s.NextWake().Sub(clock.Now()))
	assert.Equal(t, render.ModeStatus, renderer.Mode())
	assert.Equal(t, render.StatusRetrying, renderer.Status())
	connects, _ := radio.Calls()
	assert.Equal(t, 3, connects)
	assert.Equal(t, network.LinkDisconnected, session.State())
}

func TestBackoffCeiling(t *testing.T) {
	t.Parallel()

	base, ceiling := 5*time.Second, 5*time.Minute
	env := newTestEnv(t, Config{BackoffBase: base, BackoffCeiling: ceiling})
	env.fetcher.err = linkFetchError(network.ErrorTransport, 0)
	ctx := context.Background()
	expect := []time.Duration{5, 10, 20, 40, 80, 160, 300, 300, 300, 300}
	for i, e := range expect {
		wake(env.clock, env.sched)
		env.sched.Step(ctx)
		assert.Equal(t, StateBackoff, env.sched.State())
		assert.Equal(t, i+1, env.sched.Attempt())
		assert.Equal(t, e*time.Second, env.sched.NextWake().Sub(env.clock.Now()), "attempt=%d", i+1)
	}

	env.fetcher.err = nil
	wake(env.clock, env.sched)
	start := env.clock.Now()
	env.sched.Step(ctx)
	assert.Equal(t, StateIdle, env.sched.State())
	assert.Equal(t, 0, env.sched.Attempt())
	assert.Equal(t, start.Add(10*time.Minute), env.sched.NextWake(), "recovery anchors at poll start")
}

func TestMalformedKeepsFrame(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	ctx := context.Background()
	env.sched.Step(ctx)
	for i := 0; i < 5; i++ {
		require.NoError(t, env.renderer.Tick())
	}
	frame := env.renderer.Frame()
	reading := env.renderer.Reading()

	env.fetcher.err = weather.FetchError{Kind: weather.FetchMalformed, Err: errors.New("temp missing")}
	wake(env.clock, env.sched)
	env.sched.Step(ctx)
	assert.Equal(t, StateBackoff, env.sched.State())
	assert.Equal(t, 1, env.sched.Attempt())
	assert.Equal(t, frame, env.renderer.Frame())
	assert.Equal(t, reading, env.renderer.Reading())
	assert.Equal(t, render.ModeReading, env.renderer.Mode())
}

func TestStaleSwitch(t *testing.T) {
	t.Parallel()

	stale := 30 * time.Minute
	env := newTestEnv(t, Config{Stale: stale, BackoffCeiling: 10 * time.Minute})
	ctx := context.Background()
	env.sched.Step(ctx)
	env.fetcher.err = linkFetchError(network.ErrorHttpStatus, 503)

	for env.clock.Now().Sub(t0) <= stale {
		assert.Equal(t, render.ModeReading, env.renderer.Mode(), "at %v", env.clock.Now().Sub(t0))
		wake(env.clock, env.sched)
		env.sched.Step(ctx)
	}
	assert.Equal(t, render.ModeStatus, env.renderer.Mode())
	assert.Equal(t, render.StatusRetrying, env.renderer.Status())

	env.fetcher.err = nil
	wake(env.clock, env.sched)
	env.sched.Step(ctx)
	assert.Equal(t, render.ModeReading, env.renderer.Mode())
}

func TestQuotaBlocksPolling(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{DailyLimit: 2, Stale: 30 * time.Minute})
	start := time.Date(2020, 6, 1, 22, 0, 0, 0, time.UTC)
	env.clock.Set(start)
	ctx := context.Background()
	env.sched.Step(ctx)
	wake(env.clock, env.sched)
	env.sched.Step(ctx)
	require.Equal(t, 2, env.fetcher.calls)

	wake(env.clock, env.sched)
	env.sched.Step(ctx)
	assert.Equal(t, 2, env.fetcher.calls)
	assert.Equal(t, StateIdle, env.sched.State())
	assert.Equal(t, render.ModeReading, env.renderer.Mode())
	assert.Equal(t, 0, env.sched.Snapshot().Quota)

	env.clock.Set(start.Add(45 * time.Minute))
	env.sched.Step(ctx)
	assert.Equal(t, 2, env.fetcher.calls)
	assert.Equal(t, render.ModeStatus, env.renderer.Mode())
	assert.Equal(t, render.StatusError, env.renderer.Status())

	env.clock.Set(time.Date(2020, 6, 2, 0, 0, 1, 0, time.UTC))
	env.sched.Step(ctx)
	assert.Equal(t, 3, env.fetcher.calls)
	assert.Equal(t, render.ModeReading, env.renderer.Mode())
}

func TestQuota(t *testing.T) {
	t.Parallel()

	q, err := NewQuota(3, 3, "")
	require.NoError(t, err)
	// 23:00 local
	now := time.Date(2020, 6, 1, 20, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		assert.True(t, q.Allow(now))
		q.Use(now)
	}
	assert.False(t, q.Allow(now))
	assert.Equal(t, 0, q.Remaining(now))
	assert.Equal(t, time.Date(2020, 6, 1, 21, 0, 0, 0, time.UTC), q.ResetAt().UTC())
	assert.False(t, q.Allow(now.Add(59*time.Minute)))
	assert.True(t, q.Allow(now.Add(time.Hour)))
	assert.Equal(t, 3, q.Remaining(now.Add(time.Hour)))

	unlimited, err := NewQuota(0, 0, "")
	require.NoError(t, err)
	unlimited.Use(now)
	assert.True(t, unlimited.Allow(now))
	assert.Equal(t, -1, unlimited.Remaining(now))

	_, err = NewQuota(1, 0, "not cron")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		expect render.Status
	}{
		{nil, render.StatusNone},
		{errors.New("unknown"), render.StatusRetrying},
		{weather.FetchError{Kind: weather.FetchMalformed}, render.StatusError},
		{linkFetchError(network.ErrorTimeout, 0), render.StatusRetrying},
		{linkFetchError(network.ErrorTransport, 0), render.StatusRetrying},
		{linkFetchError(network.ErrorAuthRejected, 0), render.StatusError},
		{linkFetchError(network.ErrorHttpStatus, 401), render.StatusError},
		{linkFetchError(network.ErrorHttpStatus, 429), render.StatusError},
		{linkFetchError(network.ErrorHttpStatus, 502), render.StatusRetrying},
		{errors.Annotate(linkFetchError(network.ErrorTimeout, 0), "poll"), render.StatusRetrying},
	}
	for i, c := range cases {
		c := c
		t.Run(fmt.Sprintf("%d:%v", i, c.err), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, c.expect, Classify(c.err))
		})
	}
}

func TestConfigInvalid(t *testing.T) {
	t.Parallel()

	cases := []Config{
		{BackoffBase: time.Minute, BackoffCeiling: time.Second},
		{Interval: 10 * time.Minute, Stale: time.Minute},
		{Interval: time.Hour},
	}
	for i, c := range cases {
		_, err := NewScheduler(nil, c, nil, nil, helpers.NewFakeClock(t0))
		assert.True(t, errors.IsNotValid(err), "case=%d %s", i, errors.ErrorStack(err))
	}
}

func TestQuotaLogOnce(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	exhausted := 0
	log := log2.NewFunc(func(format string, args ...interface{}) {
		if strings.Contains(fmt.Sprintf(format, args...), "quota exhausted") {
			mu.Lock()
			exhausted++
			mu.Unlock()
		}
	}, log2.LDebug)
	clock := helpers.NewFakeClock(time.Date(2020, 6, 1, 22, 0, 0, 0, time.UTC))
	fetcher := &fakeFetcher{clock: clock}
	renderer := render.NewRenderer(log, &nullDevice{}, render.Config{})
	s, err := NewScheduler(log, Config{DailyLimit: 1}, fetcher, renderer, clock)
	require.NoError(t, err)

	ctx := context.Background()
	s.Step(ctx)
	for i := 0; i < 50; i++ {
		clock.Advance(time.Minute)
		s.Step(ctx)
	}
	assert.Equal(t, 1, fetcher.calls)
	mu.Lock()
	assert.Equal(t, 1, exhausted)
	mu.Unlock()

	// next day budget used up again, reported again
	clock.Set(time.Date(2020, 6, 2, 0, 0, 1, 0, time.UTC))
	s.Step(ctx)
	require.Equal(t, 2, fetcher.calls)
	wake(clock, s)
	s.Step(ctx)
	s.Step(ctx)
	mu.Lock()
	assert.Equal(t, 2, exhausted)
	mu.Unlock()
}

type pressOnce struct{ pressed bool }

func (p *pressOnce) Pressed() bool {
	if p.pressed {
		p.pressed = false
		return true
	}
	return false
}

func TestRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{Tick: 100 * time.Millisecond})
	env.renderer.Banner("Hi")
	btn := &pressOnce{}
	env.sched.SetButton(btn)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := alive.NewAlive()
	passes := 0
	env.sched.OnPass = func() {
		passes++
		if passes == 40 {
			btn.pressed = true
		}
		if passes == 50 {
			cancel()
		}
	}
	require.NoError(t, env.sched.Run(ctx, a))

	assert.Equal(t, 50, passes)
	assert.Equal(t, 1, env.fetcher.calls, "poll after banner")
	assert.False(t, btn.pressed)
	assert.Equal(t, render.ModeReading, env.renderer.Mode())
	for _, d := range env.clock.Sleeps() {
		assert.Equal(t, 100*time.Millisecond, d)
	}
	a.Stop()
	a.Wait()
}
