// Sorry, workaround to import cycles.
package state_new

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/temoto/alive/v2"
	"github.com/temoto/weathermatrix/hardware/i2c"
	"github.com/temoto/weathermatrix/helpers"
	"github.com/temoto/weathermatrix/internal/config"
	"github.com/temoto/weathermatrix/internal/network"
	"github.com/temoto/weathermatrix/internal/state"
	"github.com/temoto/weathermatrix/log2"
)

// Start time of test clock, noon UTC.
var TestStart = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

func NewContext(log *log2.Log, clock helpers.Clock) (context.Context, *state.Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &state.Global{
		Alive: alive.NewAlive(),
		Clock: clock,
		Log:   log,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, state.ContextKey, g)

	return ctx, g
}

// Mocks used by NewTestContext, exposed for assertions.
type TestHardware struct {
	Bus   *i2c.MockBus
	Radio *network.MockRadio
	HTTP  *helpers.MockHTTP
	Clock *helpers.FakeClock
}

// NewTestContext inits Global with mock bus, radio and HTTP transport.
// Radio associates on first status poll, HTTP replies with body.
func NewTestContext(t testing.TB, confString string, body string) (context.Context, *state.Global, *TestHardware) {
	fs := config.NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("weathermatrix_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	hw := &TestHardware{
		Bus:   &i2c.MockBus{},
		Radio: &network.MockRadio{Result: network.RadioConnected},
		HTTP:  &helpers.MockHTTP{Body: []byte(body)},
		Clock: helpers.NewFakeClock(TestStart),
	}
	ctx, g := NewContext(log, hw.Clock)
	g.BuildVersion = "test"
	g.Hardware.Bus.B = hw.Bus
	g.Hardware.Radio = hw.Radio
	g.Hardware.Transport = hw.HTTP
	noEnv := func(string) (string, bool) { return "", false }
	g.MustInit(ctx, config.MustReadConfig(log, fs, noEnv, "test-inline"))

	return ctx, g, hw
}
