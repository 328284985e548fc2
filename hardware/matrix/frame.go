package matrix

import (
	"strings"
)

const Size = 8

// Frame is 8x8 monochrome bitmap stored by columns, left to right.
// Bit 0 of each column is the top row.
type Frame [Size]byte

func (f *Frame) Get(x, y int) bool {
	if x < 0 || x >= Size || y < 0 || y >= Size {
		return false
	}
	return f[x]&(1<<uint(y)) != 0
}

func (f *Frame) Set(x, y int, on bool) {
	if x < 0 || x >= Size || y < 0 || y >= Size {
		return
	}
	if on {
		f[x] |= 1 << uint(y)
	} else {
		f[x] &^= 1 << uint(y)
	}
}

func (f Frame) Empty() bool { return f == Frame{} }

// Rotate returns frame turned clockwise by angle degrees (0, 90, 180, 270).
func (f Frame) Rotate(angle int) Frame {
	var out Frame
	for x := 0; x < Size; x++ {
		for y := 0; y < Size; y++ {
			var on bool
			switch angle {
			case 90:
				on = f.Get(y, Size-1-x)
			case 180:
				on = f.Get(Size-1-x, Size-1-y)
			case 270:
				on = f.Get(Size-1-y, x)
			default:
				on = f.Get(x, y)
			}
			out.Set(x, y, on)
		}
	}
	return out
}

// Rows returns bitmap by rows, bit 0 is leftmost column.
func (f Frame) Rows() [Size]byte {
	var rows [Size]byte
	for x := 0; x < Size; x++ {
		for y := 0; y < Size; y++ {
			if f[x]&(1<<uint(y)) != 0 {
				rows[y] |= 1 << uint(x)
			}
		}
	}
	return rows
}

// String is multiline picture, '#' lit, '.' dark.
func (f Frame) String() string {
	b := strings.Builder{}
	b.Grow((Size + 1) * Size)
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			if f.Get(x, y) {
				b.WriteByte('#')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseFrame is inverse of String, for tests and icon definitions.
func ParseFrame(s string) Frame {
	var f Frame
	y := 0
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		line = strings.TrimSpace(line)
		for x, c := range line {
			f.Set(x, y, c == '#')
		}
		y++
	}
	return f
}
