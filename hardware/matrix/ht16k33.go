// Package matrix drives HT16K33 8x8 LED backpack over I2C.
package matrix

import (
	"fmt"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/weathermatrix/hardware/i2c"
)

const (
	DefaultAddress = 0x70

	cmdRAM        = 0x00
	cmdOscillator = 0x21
	cmdDisplay    = 0x80
	cmdDisplayOn  = 0x01
	cmdBrightness = 0xe0

	MaxBrightness = 15
)

type Blink uint8

const (
	BlinkOff Blink = iota
	Blink2Hz
	Blink1Hz
	BlinkHalfHz
)

type Config struct {
	Address    uint16
	Brightness uint8
	Blink      Blink
	Angle      int
}

// Display owns controller state: brightness, blink and last written frame.
type Display struct {
	mu         sync.Mutex
	bus        i2c.Bus
	addr       uint16
	angle      int
	brightness uint8
	blink      Blink
	last       Frame
}

func NewDisplay(bus i2c.Bus, c Config) (*Display, error) {
	switch c.Angle {
	case 0, 90, 180, 270:
	default:
		return nil, errors.NotValidf("matrix angle=%d", c.Angle)
	}
	if c.Brightness > MaxBrightness {
		return nil, errors.NotValidf("matrix brightness=%d", c.Brightness)
	}
	if c.Blink > BlinkHalfHz {
		return nil, errors.NotValidf("matrix blink=%d", c.Blink)
	}
	if c.Address == 0 {
		c.Address = DefaultAddress
	}
	self := &Display{
		bus:        bus,
		addr:       c.Address,
		angle:      c.Angle,
		brightness: c.Brightness,
		blink:      c.Blink,
	}
	return self, nil
}

func (self *Display) String() string { return fmt.Sprintf("ht16k33 addr=%02x", self.addr) }

// Init starts oscillator, turns display on, applies brightness and clears RAM.
func (self *Display) Init() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	if err := self.cmd(cmdOscillator); err != nil {
		return errors.Annotate(err, "oscillator")
	}
	if err := self.cmd(cmdDisplay | cmdDisplayOn | byte(self.blink)<<1); err != nil {
		return errors.Annotate(err, "display on")
	}
	if err := self.cmd(cmdBrightness | self.brightness); err != nil {
		return errors.Annotate(err, "brightness")
	}
	return errors.Annotate(self.write(Frame{}), "clear")
}

func (self *Display) SetBrightness(level uint8) error {
	if level > MaxBrightness {
		return errors.NotValidf("matrix brightness=%d", level)
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	if err := self.cmd(cmdBrightness | level); err != nil {
		return errors.Annotate(err, "brightness")
	}
	self.brightness = level
	return nil
}

func (self *Display) SetBlink(b Blink) error {
	if b > BlinkHalfHz {
		return errors.NotValidf("matrix blink=%d", b)
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	if err := self.cmd(cmdDisplay | cmdDisplayOn | byte(b)<<1); err != nil {
		return errors.Annotate(err, "blink")
	}
	self.blink = b
	return nil
}

func (self *Display) Brightness() uint8 {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.brightness
}

// Write sends whole frame to display RAM.
func (self *Display) Write(f Frame) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.write(f)
}

func (self *Display) Last() Frame {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.last
}

func (self *Display) Clear() error { return self.Write(Frame{}) }

// Close blanks and turns display off.
func (self *Display) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	err1 := self.write(Frame{})
	err2 := self.cmd(cmdDisplay)
	if err1 != nil {
		return err1
	}
	return err2
}

func (self *Display) cmd(b byte) error {
	return self.bus.Tx(self.addr, []byte{b}, nil)
}

func (self *Display) write(f Frame) error {
	rows := f.Rotate(self.angle).Rows()
	var buf [1 + 2*Size]byte
	buf[0] = cmdRAM
	for y, row := range rows {
		// backpack wires column 0 to bit 7
		buf[1+2*y] = row>>1 | row<<7
	}
	if err := self.bus.Tx(self.addr, buf[:], nil); err != nil {
		return errors.Annotatef(err, "%s write", self.String())
	}
	self.last = f
	return nil
}
