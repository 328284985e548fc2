package helpers

import (
	"io"
)

// Adder is satisfied by *expvar.Int.
type Adder interface {
	Add(int64)
}

// CountReader adds number of bytes read to V.
type CountReader struct {
	R io.Reader
	V Adder
}

var _ io.Reader = &CountReader{}

func NewCountReader(r io.Reader, v Adder) io.Reader {
	return &CountReader{R: r, V: v}
}

func (cr *CountReader) Read(p []byte) (n int, err error) {
	n, err = cr.R.Read(p)
	if n > 0 {
		cr.V.Add(int64(n))
	}
	return
}
