package state

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/weathermatrix/hardware/i2c"
	"github.com/temoto/weathermatrix/hardware/indicator"
	"github.com/temoto/weathermatrix/hardware/matrix"
	"github.com/temoto/weathermatrix/hardware/wlan"
	"github.com/temoto/weathermatrix/internal/config"
	"github.com/temoto/weathermatrix/internal/network"
	"github.com/temoto/weathermatrix/internal/render"
	"github.com/temoto/weathermatrix/log2"
)

// Preset fields (state-new testing mode) are used instead of opening real devices.
type hardware struct {
	Bus struct {
		once
		B i2c.BusCloser
	}
	Matrix struct {
		once
		D *matrix.Display
	}
	Indicator struct {
		once
		X *indicator.Indicator
	}
	Radio     network.Radio
	Transport http.RoundTripper
}

func (g *Global) Bus() (i2c.BusCloser, error) {
	x := &g.Hardware.Bus // short alias
	_ = x.do(func() error {
		if x.B != nil {
			return nil
		}
		var err error
		x.B, err = openBus(g.Config)
		return err
	})
	return x.B, x.err
}

func (g *Global) Matrix() (*matrix.Display, error) {
	x := &g.Hardware.Matrix // short alias
	_ = x.do(func() error {
		if x.D != nil {
			return nil
		}
		bus, err := g.Bus()
		if err != nil {
			return errors.Annotate(err, "matrix bus")
		}
		x.D, err = newMatrix(bus, g.Config)
		return err
	})
	return x.D, x.err
}

func (g *Global) Indicator() (*indicator.Indicator, error) {
	x := &g.Hardware.Indicator // short alias
	_ = x.do(func() error {
		if x.X != nil {
			return nil
		}
		cfg := &g.Config.GPIO
		var err error
		x.X, err = indicator.Open(g.Log, indicator.Config{
			Chip:      cfg.Chip,
			LedPin:    cfg.LedPin,
			PowerPin:  cfg.PowerPin,
			ButtonPin: cfg.ButtonPin,
		})
		return errors.Annotatef(err, "config: gpio=%#v", *cfg)
	})
	return x.X, x.err
}

func (g *Global) Radio() network.Radio {
	if g.Hardware.Radio == nil {
		g.Hardware.Radio = wlan.NewNetif(g.Config.Wifi.Interface)
	}
	return g.Hardware.Radio
}

func openBus(cfg *config.Config) (i2c.BusCloser, error) {
	driver, name, busNo := "", "", byte(0)
	if cfg != nil {
		driver, name, busNo = cfg.Display.I2CDriver, cfg.Display.I2CBus, byte(cfg.Display.I2CBusNo)
	}
	bus, err := i2c.Open(driver, name, busNo)
	return bus, errors.Annotatef(err, "config: display.i2c_driver=%s", driver)
}

func newMatrix(bus i2c.Bus, cfg *config.Config) (*matrix.Display, error) {
	mc := matrix.Config{}
	if cfg != nil {
		mc = matrix.Config{
			Address:    uint16(cfg.Display.Address),
			Brightness: uint8(cfg.Display.Brightness),
			Blink:      matrix.Blink(cfg.Display.Blink),
			Angle:      cfg.Display.Angle,
		}
	}
	d, err := matrix.NewDisplay(bus, mc)
	if err != nil {
		return nil, errors.Annotate(err, "config: display")
	}
	if err = d.Init(); err != nil {
		return nil, errors.Annotatef(err, "%s init", d.String())
	}
	return d, nil
}

// ShowBootError lights error glyph when normal startup failed.
// With nil cfg default display settings are used.
func ShowBootError(log *log2.Log, cfg *config.Config) {
	bus, err := openBus(cfg)
	if err != nil {
		log.Error(errors.Annotate(err, "boot error display"))
		return
	}
	defer bus.Close()
	d, err := newMatrix(bus, cfg)
	if err == nil {
		err = d.Write(render.StatusGlyph(render.StatusError))
	}
	if err != nil {
		log.Error(errors.Annotate(err, "boot error display"))
	}
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
