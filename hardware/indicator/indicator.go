// Package indicator drives auxiliary GPIO lines: link status LED,
// matrix power switch and replay button.
package indicator

import (
	"strconv"
	"sync"

	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
	"github.com/temoto/weathermatrix/helpers"
	"github.com/temoto/weathermatrix/internal/network"
	"github.com/temoto/weathermatrix/log2"
)

const (
	DefaultChip = "/dev/gpiochip0"
	consumer    = "weathermatrix"

	// ticks of alternating LED after failed connect, 5 flashes
	failFlashTicks = 10
)

// Pin values are line offsets in decimal, empty string disables the line.
type Config struct {
	Chip      string
	LedPin    string
	PowerPin  string
	ButtonPin string
}

type Indicator struct { //nolint:maligned
	log  *log2.Log
	chip gpio.Chiper
	out  gpio.Lineser
	in   gpio.Lineser

	led   gpio.LineSetFunc
	power gpio.LineSetFunc

	mu      sync.Mutex
	link    network.LinkState
	on      bool
	flash   int
	pressed bool
}

func parsePin(name, s string) (uint32, bool, error) {
	if s == "" {
		return 0, false, nil
	}
	x, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false, errors.NotValidf("gpio %s=%s", name, s)
	}
	return uint32(x), true, nil
}

// Open returns no-op indicator when no pins are configured.
func Open(log *log2.Log, c Config) (*Indicator, error) {
	if c.LedPin == "" && c.PowerPin == "" && c.ButtonPin == "" {
		return &Indicator{log: log}, nil
	}
	if c.Chip == "" {
		c.Chip = DefaultChip
	}
	chip, err := gpio.Open(c.Chip, consumer)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open chip=%s", c.Chip)
	}
	self, err := New(log, chip, c)
	if err != nil {
		chip.Close()
		return nil, err
	}
	return self, nil
}

func New(log *log2.Log, chip gpio.Chiper, c Config) (*Indicator, error) {
	self := &Indicator{log: log, chip: chip}
	ledLine, hasLed, err := parsePin("led_pin", c.LedPin)
	if err != nil {
		return nil, err
	}
	powerLine, hasPower, err := parsePin("power_pin", c.PowerPin)
	if err != nil {
		return nil, err
	}
	buttonLine, hasButton, err := parsePin("button_pin", c.ButtonPin)
	if err != nil {
		return nil, err
	}

	outLines := make([]uint32, 0, 2)
	if hasLed {
		outLines = append(outLines, ledLine)
	}
	if hasPower {
		outLines = append(outLines, powerLine)
	}
	if len(outLines) != 0 {
		self.out, err = chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, consumer, outLines...)
		if err != nil {
			return nil, errors.Annotatef(err, "gpio output lines=%v", outLines)
		}
		if hasLed {
			self.led = self.out.SetFunc(ledLine)
		}
		if hasPower {
			self.power = self.out.SetFunc(powerLine)
		}
	}
	if hasButton {
		self.in, err = chip.OpenLines(gpio.GPIOHANDLE_REQUEST_INPUT|gpio.GPIOHANDLE_REQUEST_ACTIVE_LOW, consumer, buttonLine)
		if err != nil {
			if self.out != nil {
				self.out.Close()
			}
			return nil, errors.Annotatef(err, "gpio button line=%d", buttonLine)
		}
	}
	self.log.Debugf("indicator led=%t power=%t button=%t", hasLed, hasPower, hasButton)
	return self, nil
}

// LinkChanged selects LED pattern; failed connect attempt starts flashing.
func (self *Indicator) LinkChanged(l network.LinkState) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.link == network.LinkConnecting && l == network.LinkDisconnected {
		self.flash = failFlashTicks
	}
	self.link = l
}

// Tick advances LED pattern by one step.
// On when Connected, toggles while Connecting, off otherwise.
func (self *Indicator) Tick() {
	self.mu.Lock()
	defer self.mu.Unlock()
	on := self.on
	switch {
	case self.flash > 0:
		self.flash--
		on = self.flash%2 == 1
	case self.link == network.LinkConnected:
		on = true
	case self.link == network.LinkConnecting:
		on = !self.on
	default:
		on = false
	}
	if on == self.on {
		return
	}
	self.on = on
	if self.led == nil {
		return
	}
	self.led(bool2byte(on))
	if err := self.out.Flush(); err != nil {
		self.log.Error(errors.Annotate(err, "indicator led"))
	}
}

func (self *Indicator) LedOn() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.on
}

// Power switches matrix supply, no-op without power line.
func (self *Indicator) Power(on bool) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.power == nil {
		return nil
	}
	self.power(bool2byte(on))
	return errors.Annotate(self.out.Flush(), "indicator power")
}

// Pressed reports button press edge since previous call.
func (self *Indicator) Pressed() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.in == nil {
		return false
	}
	data, err := self.in.Read()
	if err != nil {
		self.log.Error(errors.Annotate(err, "indicator button"))
		return false
	}
	now := data.Values[0] != 0
	edge := now && !self.pressed
	self.pressed = now
	return edge
}

func (self *Indicator) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	errs := make([]error, 0, 3)
	if self.out != nil {
		if self.led != nil {
			self.led(0)
			errs = append(errs, self.out.Flush())
		}
		errs = append(errs, self.out.Close())
		self.out = nil
	}
	if self.in != nil {
		errs = append(errs, self.in.Close())
		self.in = nil
	}
	if self.chip != nil {
		errs = append(errs, self.chip.Close())
		self.chip = nil
	}
	self.led, self.power = nil, nil
	return helpers.FoldErrors(errs)
}

func bool2byte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
