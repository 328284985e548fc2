// Device mode: show weather on the matrix until stopped.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/weathermatrix/cmd/weathermatrix/subcmd"
	"github.com/temoto/weathermatrix/internal/config"
	"github.com/temoto/weathermatrix/internal/state"
)

var Mod = subcmd.Mod{Name: "run", Help: "show weather on LED matrix", Main: Main}

func Main(ctx context.Context, cfg *config.Config) error {
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, cfg); err != nil {
		state.ShowBootError(g.Log, cfg)
		return errors.Annotate(err, "init")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigs:
			g.Log.Infof("signal=%v stopping", s)
			subcmd.SdNotify(daemon.SdNotifyStopping)
			g.Stop()
			cancel()
		case <-ctx.Done():
		}
	}()

	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		every := time.Second
		if half := interval / 2; half < every {
			every = half
		}
		g.Scheduler.OnPass = watchdog(g.Scheduler.OnPass, every)
	}
	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("init complete, running")

	err := g.Run(ctx)
	g.Stop()
	if serr := g.Shutdown(); serr != nil {
		g.Log.Error(serr)
	}
	g.Alive.Wait()
	return err
}

// watchdog pings systemd from control loop, so a stuck loop gets restarted.
func watchdog(next func(), every time.Duration) func() {
	var last time.Time
	return func() {
		if next != nil {
			next()
		}
		if now := time.Now(); now.Sub(last) >= every {
			last = now
			subcmd.SdNotify(daemon.SdNotifyWatchdog)
		}
	}
}
