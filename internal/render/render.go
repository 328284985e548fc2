// Package render turns readings and status into 8x8 animation frames.
// Renderer is the only writer of display frames and is not safe for concurrent use.
package render

import (
	"math"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/weathermatrix/hardware/matrix"
	"github.com/temoto/weathermatrix/internal/weather"
	"github.com/temoto/weathermatrix/log2"
)

const (
	DefaultTick   = 100 * time.Millisecond
	DefaultDwell  = 2 * time.Second
	DefaultReplay = 20 * time.Second
)

type Device interface {
	Write(matrix.Frame) error
}

type Config struct {
	Tick            time.Duration
	Dwell           time.Duration
	Replay          time.Duration
	ScrollStep      int
	ScrollCondition bool
	Icons           IconSet
}

type Mode uint8

const (
	ModeIdle Mode = iota
	ModeBanner
	ModeReading
	ModeStatus
)

type step struct {
	strip  []byte
	scroll bool
	hold   int
}

type Renderer struct {
	log    *log2.Log
	dev    Device
	config Config

	mode    Mode
	status  Status
	reading weather.Reading

	prog  []step
	loop  bool
	si    int
	pos   int
	fresh bool
	frame matrix.Frame

	written   matrix.Frame
	writtenOK bool
	writes    uint64
}

func NewRenderer(log *log2.Log, dev Device, c Config) *Renderer {
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.Dwell <= 0 {
		c.Dwell = DefaultDwell
	}
	if c.Replay <= 0 {
		c.Replay = DefaultReplay
	}
	if c.ScrollStep <= 0 {
		c.ScrollStep = 1
	}
	if c.Icons == nil {
		c.Icons = DefaultIcons()
	}
	return &Renderer{
		log:    log,
		dev:    dev,
		config: c,
	}
}

func (self *Renderer) Mode() Mode               { return self.mode }
func (self *Renderer) Status() Status           { return self.status }
func (self *Renderer) Reading() weather.Reading { return self.reading }
func (self *Renderer) Frame() matrix.Frame      { return self.frame }
func (self *Renderer) Writes() uint64           { return self.writes }

// Busy is true while non-looping animation (banner) is playing.
func (self *Renderer) Busy() bool { return self.mode == ModeBanner }

// Show replaces displayed data with reading and starts its animation from beginning.
func (self *Renderer) Show(r weather.Reading) {
	self.reading = r
	self.status = StatusNone
	self.start(ModeReading, self.readingProgram(r), true)
	self.log.Debugf("render show %s", r.String())
}

// ShowStatus displays fixed glyph. Repeated call with same status changes nothing.
func (self *Renderer) ShowStatus(s Status) {
	if s == StatusNone {
		return
	}
	if self.mode == ModeStatus && self.status == s {
		return
	}
	self.status = s
	g := statusGlyphs[s]
	self.start(ModeStatus, []step{{strip: g[:], hold: 1}}, true)
	self.log.Debugf("render status=%s", s)
}

// Banner scrolls text once, then display goes blank unless Show/ShowStatus is called.
func (self *Renderer) Banner(text string) {
	self.start(ModeBanner, []step{scrollStep(TextColumns(text))}, false)
}

// Replay restarts reading animation, no-op in other modes.
func (self *Renderer) Replay() {
	if self.mode == ModeReading {
		self.start(ModeReading, self.prog, true)
	}
}

// Tick advances animation by one step and writes frame to device if it changed.
func (self *Renderer) Tick() error {
	if self.fresh {
		self.fresh = false
	} else {
		self.advance()
	}
	return self.flush()
}

// Clear blanks display and forgets everything shown.
func (self *Renderer) Clear() error {
	self.mode = ModeIdle
	self.status = StatusNone
	self.reading = weather.Reading{}
	self.prog = nil
	self.frame = matrix.Frame{}
	return self.flush()
}

func (self *Renderer) start(mode Mode, prog []step, loop bool) {
	self.mode = mode
	self.prog = prog
	self.loop = loop
	self.si = 0
	self.pos = 0
	self.fresh = true
	self.frame = self.compose()
}

func (self *Renderer) advance() {
	if len(self.prog) == 0 {
		return
	}
	st := &self.prog[self.si]
	next := false
	if st.scroll {
		self.pos += self.config.ScrollStep
		next = self.pos > len(st.strip)-matrix.Size
	} else {
		self.pos++
		next = self.pos >= st.hold
	}
	if next {
		self.si++
		self.pos = 0
		if self.si >= len(self.prog) {
			if !self.loop {
				self.mode = ModeIdle
				self.prog = nil
				self.si = 0
				self.frame = matrix.Frame{}
				return
			}
			self.si = 0
		}
	}
	self.frame = self.compose()
}

func (self *Renderer) compose() matrix.Frame {
	var f matrix.Frame
	if len(self.prog) == 0 {
		return f
	}
	st := self.prog[self.si]
	offset := 0
	if st.scroll {
		offset = self.pos
	}
	if offset < len(st.strip) {
		copy(f[:], st.strip[offset:])
	}
	return f
}

func (self *Renderer) flush() error {
	if self.writtenOK && self.frame == self.written {
		return nil
	}
	if err := self.dev.Write(self.frame); err != nil {
		self.writtenOK = false
		return errors.Annotate(err, "render write")
	}
	self.written = self.frame
	self.writtenOK = true
	self.writes++
	return nil
}

func (self *Renderer) ticks(d time.Duration) int {
	n := int((d + self.config.Tick - 1) / self.config.Tick)
	if n < 1 {
		n = 1
	}
	return n
}

func (self *Renderer) readingProgram(r weather.Reading) []step {
	dwell := self.ticks(self.config.Dwell)
	prog := make([]step, 0, 4)
	if self.config.ScrollCondition && r.Label != "" {
		prog = append(prog, scrollStep(TextColumns(r.Label)))
	}

	temp := FormatTemperature(r.Temperature)
	if cols, ok := DigitColumns(temp); ok && len(cols) <= matrix.Size {
		prog = append(prog, step{strip: centered(cols), hold: dwell})
	} else {
		prog = append(prog, scrollStep(TextColumns(temp)))
	}

	prog = append(prog, step{strip: unitGlyph[:], hold: dwell})

	hold := self.ticks(self.config.Replay)
	if hold < dwell {
		hold = dwell
	}
	icon := self.config.Icons.Get(r.Icon)
	prog = append(prog, step{strip: icon[:], hold: hold})
	return prog
}

// FormatTemperature rounds to whole degrees, never returns "-0".
func FormatTemperature(t float64) string {
	i := int(math.Round(t))
	return strconv.Itoa(i)
}

func scrollStep(cols []byte) step {
	strip := make([]byte, 0, len(cols)+2*matrix.Size)
	strip = append(strip, make([]byte, matrix.Size)...)
	strip = append(strip, cols...)
	strip = append(strip, make([]byte, matrix.Size)...)
	return step{strip: strip, scroll: true}
}

func centered(cols []byte) []byte {
	strip := make([]byte, matrix.Size)
	copy(strip[(matrix.Size-len(cols))/2:], cols)
	return strip
}
