package render

import (
	"encoding/hex"
	"math/bits"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/weathermatrix/hardware/matrix"
	"github.com/temoto/weathermatrix/internal/weather"
)

// builtinIcons are column bytes with most significant bit at top row.
var builtinIcons = map[string]string{
	weather.IconClearDay:     "91 42 18 3d bc 18 42 89",
	weather.IconRain:         "31 7a 78 fa fc f9 7a 30",
	weather.IconLightRain:    "31 7a 78 fa fc f9 7a 30",
	weather.IconSnow:         "28 92 54 38 38 54 92 28",
	weather.IconSleet:        "32 7d 7a fd fa fd 7a 35",
	weather.IconWind:         "28 28 28 28 28 aa aa 44",
	weather.IconFog:          "aa 55 aa 55 aa 55 aa 55",
	weather.IconCloudy:       "30 78 78 f8 f8 f8 78 30",
	weather.IconPartlyCloudy: "30 48 48 88 88 88 48 30",
	weather.IconThunderstorm: "00 00 00 0f 38 e0 00 00",
	weather.IconTornado:      "00 40 6c be bb b1 60 40",
	weather.IconClearNight:   "3c 42 81 c3 ff ff 7e 3c",
	weather.IconNone:         "00 00 40 9d 90 60 00 00",
}

// IconSet maps icon key to picture. Missing key renders "none".
type IconSet map[string]matrix.Frame

func DefaultIcons() IconSet {
	set := make(IconSet, len(builtinIcons))
	for name, s := range builtinIcons {
		f, err := ParseBitmap(s)
		if err != nil {
			panic("code error builtin icon=" + name + " " + err.Error())
		}
		set[name] = f
	}
	return set
}

// Set adds or replaces icon from bitmap string.
func (self IconSet) Set(name, bitmap string) error {
	f, err := ParseBitmap(bitmap)
	if err != nil {
		return errors.Annotatef(err, "icon=%s", name)
	}
	self[name] = f
	return nil
}

func (self IconSet) Get(name string) matrix.Frame {
	if f, ok := self[name]; ok {
		return f
	}
	return self[weather.IconNone]
}

// ParseBitmap reads 8 hex column bytes, whitespace optional, MSB is top row.
func ParseBitmap(s string) (matrix.Frame, error) {
	var f matrix.Frame
	clean := strings.Join(strings.Fields(s), "")
	clean = strings.Replace(clean, "0x", "", -1)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return f, errors.Annotate(err, "bitmap")
	}
	if len(b) != matrix.Size {
		return f, errors.NotValidf("bitmap length=%d", len(b))
	}
	for i, col := range b {
		f[i] = bits.Reverse8(col)
	}
	return f, nil
}
