// Bench tool: cycle every picture the device can show on real HT16K33.
package main

import (
	"flag"
	"sort"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/weathermatrix/hardware/i2c"
	"github.com/temoto/weathermatrix/hardware/matrix"
	"github.com/temoto/weathermatrix/internal/render"
	"github.com/temoto/weathermatrix/log2"
)

var log = log2.NewStderr(log2.LDebug)

func main() {
	log.SetFlags(log2.LInteractiveFlags)
	flagDriver := flag.String("driver", "periph", "periph|raw")
	flagBus := flag.String("bus", "", "periph bus name, empty for first available")
	flagBusNo := flag.Uint("busno", 1, "raw driver /dev/i2c-N")
	flagAddr := flag.Uint("addr", matrix.DefaultAddress, "")
	flagBrightness := flag.Uint("brightness", 8, "0-15")
	flagAngle := flag.Int("angle", 0, "0|90|180|270")
	flagDelay := flag.Duration("delay", time.Second, "")
	flagLoop := flag.Bool("loop", false, "repeat until killed")
	flag.Parse()

	bus, err := i2c.Open(*flagDriver, *flagBus, byte(*flagBusNo))
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	d, err := matrix.NewDisplay(bus, matrix.Config{
		Address:    uint16(*flagAddr),
		Brightness: uint8(*flagBrightness),
		Angle:      *flagAngle,
	})
	if err == nil {
		err = d.Init()
	}
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	defer bus.Close()
	defer d.Close()

	for {
		for _, s := range showcase() {
			log.Infof("show %s\n%s", s.name, s.frame.String())
			if err := d.Write(s.frame); err != nil {
				log.Fatal(errors.ErrorStack(err))
			}
			time.Sleep(*flagDelay)
		}
		if !*flagLoop {
			break
		}
	}
}

type picture struct {
	name  string
	frame matrix.Frame
}

func showcase() []picture {
	icons := render.DefaultIcons()
	names := make([]string, 0, len(icons))
	for name := range icons {
		names = append(names, name)
	}
	sort.Strings(names)

	ps := make([]picture, 0, len(names)+16)
	ps = append(ps, picture{"all-on", allOn()})
	for _, name := range names {
		ps = append(ps, picture{"icon/" + name, icons[name]})
	}
	for _, s := range []render.Status{render.StatusConnecting, render.StatusRetrying, render.StatusError} {
		ps = append(ps, picture{"status/" + s.String(), render.StatusGlyph(s)})
	}
	ps = append(ps, picture{"unit", render.UnitGlyph()})
	for _, s := range []string{"0", "7", "18", "-5", "42", "-12"} {
		cols, ok := render.DigitColumns(s)
		if !ok || len(cols) > matrix.Size {
			continue
		}
		var f matrix.Frame
		copy(f[(matrix.Size-len(cols))/2:], cols)
		ps = append(ps, picture{"digits/" + s, f})
	}
	return ps
}

func allOn() matrix.Frame {
	var f matrix.Frame
	for i := range f {
		f[i] = 0xff
	}
	return f
}
