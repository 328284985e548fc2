package network

import (
	"fmt"

	"github.com/juju/errors"
)

type ErrorKind uint8

const (
	ErrorInvalid ErrorKind = iota
	ErrorTimeout
	ErrorAuthRejected
	ErrorTransport
	ErrorHttpStatus
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorTimeout:
		return "Timeout"
	case ErrorAuthRejected:
		return "AuthRejected"
	case ErrorTransport:
		return "Transport"
	case ErrorHttpStatus:
		return "HttpStatus"
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// LinkError is the only error type returned by Session.
// Code is HTTP status for ErrorHttpStatus.
type LinkError struct {
	Kind ErrorKind
	Code int
	Err  error
}

func (e LinkError) Error() string {
	s := "link " + e.Kind.String()
	if e.Kind == ErrorHttpStatus {
		s += fmt.Sprintf("(%d)", e.Code)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e LinkError) Unwrap() error { return e.Err }

// AsLinkError finds LinkError through juju annotations.
func AsLinkError(err error) (LinkError, bool) {
	if err == nil {
		return LinkError{}, false
	}
	le, ok := errors.Cause(err).(LinkError)
	return le, ok
}
