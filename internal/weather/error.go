package weather

import (
	"fmt"

	"github.com/juju/errors"
)

type FetchKind uint8

const (
	FetchInvalid FetchKind = iota
	FetchNetwork
	FetchMalformed
)

func (k FetchKind) String() string {
	switch k {
	case FetchNetwork:
		return "Network"
	case FetchMalformed:
		return "Malformed"
	}
	return fmt.Sprintf("FetchKind(%d)", k)
}

// FetchError Network wraps network.LinkError.
type FetchError struct {
	Kind FetchKind
	Err  error
}

func (e FetchError) Error() string {
	if e.Err == nil {
		return "fetch " + e.Kind.String()
	}
	return "fetch " + e.Kind.String() + ": " + e.Err.Error()
}

func (e FetchError) Unwrap() error { return e.Err }

func AsFetchError(err error) (FetchError, bool) {
	if err == nil {
		return FetchError{}, false
	}
	fe, ok := errors.Cause(err).(FetchError)
	return fe, ok
}

func malformed(format string, args ...interface{}) FetchError {
	return FetchError{Kind: FetchMalformed, Err: errors.Errorf(format, args...)}
}
