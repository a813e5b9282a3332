package rawhttp

import (
	"errors"
	"fmt"
	"net"

	"github.com/datallboy/rangefetch/internal/domain"
)

type Kind int

const (
	KindConnect Kind = iota + 1
	KindWrite
	KindRead
	KindTimeout
	KindTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	case KindTimeout:
		return "timeout"
	case KindTooLarge:
		return "response too large"
	default:
		return "unknown"
	}
}

// Error is a transport failure on one session.
type Error struct {
	Kind     Kind
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether a fresh connection might succeed. An oversized
// response is not going to shrink on retry.
func (e *Error) Transient() bool { return e.Kind != KindTooLarge }

// LengthMismatchError carries the window and body sizes of a rejected segment.
type LengthMismatchError struct {
	Window domain.Window
	Got    int
	Want   int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("segment %s: got %d body bytes, want %d", e.Window, e.Got, e.Want)
}

func (e *LengthMismatchError) Unwrap() error { return domain.ErrLengthMismatch }

// classify turns a net error into an *Error, folding deadline expiry into KindTimeout.
func classify(kind Kind, endpoint string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Endpoint: endpoint, Err: err}
}
