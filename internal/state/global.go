package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/weathermatrix/helpers"
	"github.com/temoto/weathermatrix/internal/config"
	"github.com/temoto/weathermatrix/internal/metrics"
	"github.com/temoto/weathermatrix/internal/network"
	"github.com/temoto/weathermatrix/internal/render"
	"github.com/temoto/weathermatrix/internal/scheduler"
	"github.com/temoto/weathermatrix/internal/tele"
	"github.com/temoto/weathermatrix/internal/weather"
	"github.com/temoto/weathermatrix/log2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Clock        helpers.Clock
	Config       *config.Config
	Hardware     hardware // hardware.go
	Log          *log2.Log
	Metrics      *metrics.Metrics
	Renderer     *render.Renderer
	Scheduler    *scheduler.Scheduler
	Session      *network.Session
	Tele         *tele.Tele
	Weather      *weather.Client

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// componentLog returns clone with debug enabled per config block.
func (g *Global) componentLog(debug bool) *log2.Log {
	if debug {
		return g.Log.Clone(log2.LDebug)
	}
	return g.Log.Clone(log2.LInfo)
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *config.Config) error {
	g.Config = cfg
	if g.Clock == nil {
		g.Clock = helpers.SystemClock{}
	}
	g.Log.Infof("build version=%s", g.BuildVersion)

	// tele goes first so it sees link state from the beginning
	if g.Tele == nil {
		g.Tele = tele.New(nil)
	}
	if err := g.Tele.Init(ctx, g.componentLog(cfg.Tele.LogDebug), teleConfig(cfg), g.Clock); err != nil {
		return errors.Annotate(err, "tele init")
	}
	// Tele got log clone before SetErrorFunc, so its own errors do not recurse
	g.Log.SetErrorFunc(g.Tele.Error)
	if g.Metrics == nil {
		g.Metrics = metrics.New()
	}

	ind, err := g.Indicator()
	if err != nil {
		return errors.Annotate(err, "indicator init")
	}
	if err = ind.Power(true); err != nil {
		return errors.Annotate(err, "matrix power")
	}
	mx, err := g.Matrix()
	if err != nil {
		return errors.Annotate(err, "matrix init")
	}

	icons := render.DefaultIcons()
	for _, ic := range cfg.Display.Icons {
		if err = icons.Set(ic.Name, ic.Bitmap); err != nil {
			return errors.Annotatef(err, "config: display.icon=%s", ic.Name)
		}
	}
	g.Renderer = render.NewRenderer(g.componentLog(cfg.Display.LogDebug), mx, render.Config{
		Tick:            cfg.Tick(),
		Dwell:           cfg.Dwell(),
		Replay:          cfg.Replay(),
		ScrollStep:      cfg.Display.ScrollStep,
		ScrollCondition: cfg.Display.ScrollCondition,
		Icons:           icons,
	})

	g.Session = network.NewSession(g.componentLog(cfg.Wifi.LogDebug), network.Config{
		SSID:           cfg.Wifi.SSID,
		Password:       cfg.Wifi.Password,
		ConnectTimeout: cfg.ConnectTimeout(),
		RequestTimeout: cfg.RequestTimeout(),
	}, g.Radio(), g.Clock, g.Hardware.Transport)
	g.Session.OnChange = func(l network.LinkState) {
		ind.LinkChanged(l)
		g.Tele.LinkChanged(l)
		g.Metrics.LinkChanged(l)
	}
	g.Session.OnStep = ind.Tick
	g.Metrics.WatchSession(g.Session, g.Clock)

	g.Weather = weather.NewClient(g.componentLog(cfg.Weather.LogDebug), weather.Config{
		URL:    cfg.Weather.URL,
		APIKey: cfg.Weather.APIKey,
		Lat:    cfg.Lat(),
		Lng:    cfg.Lng(),
		TZ:     cfg.Weather.TZ,
		Field:  cfg.Weather.Temperature,
	}, g.Session, g.Clock)

	g.Scheduler, err = scheduler.NewScheduler(g.componentLog(cfg.Schedule.LogDebug), scheduler.Config{
		Interval:       cfg.PollInterval(),
		BackoffBase:    cfg.BackoffBase(),
		BackoffCeiling: cfg.BackoffCeiling(),
		Stale:          cfg.Stale(),
		Tick:           cfg.Tick(),
		DailyLimit:     cfg.Weather.DailyLimit,
		TZ:             cfg.Weather.TZ,
	}, g.Weather, g.Renderer, g.Clock)
	if err != nil {
		return errors.Annotate(err, "scheduler init")
	}
	g.Scheduler.AddObserver(g.Tele)
	g.Scheduler.AddObserver(g.Metrics)
	g.Scheduler.SetButton(ind)
	g.Scheduler.OnPass = ind.Tick
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *config.Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

// Run plays boot banner, then runs control loop until stopped.
func (g *Global) Run(ctx context.Context) error {
	if banner := g.Config.Display.Banner; banner != "" {
		g.Renderer.Banner(banner)
	}
	if listen := g.Config.Metrics.Listen; listen != "" && g.Alive.Add(1) {
		go func() {
			defer g.Alive.Done()
			if err := g.Metrics.Serve(ctx, g.Log, listen); err != nil {
				g.Log.Error(err)
			}
		}()
	}
	return g.Scheduler.Run(ctx, g.Alive)
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Shutdown blanks display and releases hardware and network.
// Call after control loop returned.
func (g *Global) Shutdown() error {
	errs := make([]error, 0, 8)
	if g.Session != nil {
		errs = append(errs, g.Session.Close())
	}
	if g.Renderer != nil {
		errs = append(errs, g.Renderer.Clear())
	}
	if x := &g.Hardware.Matrix; x.D != nil {
		errs = append(errs, x.D.Close())
	}
	if x := &g.Hardware.Indicator; x.X != nil {
		errs = append(errs, x.X.Power(false), x.X.Close())
	}
	if x := &g.Hardware.Bus; x.B != nil {
		errs = append(errs, x.B.Close())
	}
	if g.Tele != nil {
		g.Tele.Close()
	}
	return errors.Annotate(helpers.FoldErrors(errs), "shutdown")
}

func teleConfig(cfg *config.Config) tele.Config {
	c := &cfg.Tele
	return tele.Config{
		Enable:      c.Enable,
		Broker:      c.Broker,
		ClientID:    c.ClientID,
		Username:    c.Username,
		Password:    c.Password,
		TopicPrefix: c.TopicPrefix,
		TLSCAFile:   c.TLSCAFile,
		Keepalive:   helpers.IntSecondDefault(c.KeepaliveSec, tele.DefaultKeepalive),
		LogDebug:    c.LogDebug,
	}
}
