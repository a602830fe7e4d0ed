package session

import (
	"errors"
	"fmt"

	"github.com/25x8/playvested/internal/decode"
	"github.com/25x8/playvested/internal/service"
)

var (
	ErrPrecondition = errors.New("precondition failed")
	ErrInFlight     = errors.New("operation already in flight")

	errClosed = fmt.Errorf("%w: controller closed", ErrPrecondition)
)

type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindPrecondition
	KindInFlight
	KindTransport
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPrecondition:
		return "precondition"
	case KindInFlight:
		return "in-flight"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// KindOf classifies an error returned by the controller.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInFlight):
		return KindInFlight
	case errors.Is(err, ErrPrecondition):
		return KindPrecondition
	case errors.Is(err, decode.ErrDecode):
		return KindDecode
	default:
		return KindTransport
	}
}

func inFlightError(action service.Action) error {
	return fmt.Errorf("%w: %s", ErrInFlight, action)
}
