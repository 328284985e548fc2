package render

import (
	"fmt"

	"github.com/temoto/weathermatrix/hardware/matrix"
)

type Status uint8

const (
	StatusNone Status = iota
	StatusConnecting
	StatusRetrying
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusConnecting:
		return "connecting"
	case StatusRetrying:
		return "retrying"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", s)
}

var statusGlyphs = map[Status]matrix.Frame{
	StatusConnecting: matrix.ParseFrame(`
........
..####..
.#....#.
#..##..#
..#..#..
........
...##...
...##...`),
	StatusRetrying: matrix.ParseFrame(`
..###.#.
.#...##.
#...###.
#.......
#.......
#......#
.#....#.
..####..`),
	StatusError: matrix.ParseFrame(`
...##...
...##...
...##...
...##...
...##...
........
...##...
...##...`),
}

var unitGlyph = matrix.ParseFrame(`
.#......
#.#.....
.#..###.
...#....
...#....
...#....
....###.
........`)

func StatusGlyph(s Status) matrix.Frame { return statusGlyphs[s] }

func UnitGlyph() matrix.Frame { return unitGlyph }
