package domain

import (
	"context"
	"errors"
	"net"
)

// ErrMissingContentLength indicates the size discovery response had no Content-Length header
var ErrMissingContentLength = errors.New("content-length header not found")

// ErrInvalidContentLength indicates a zero or unparsable Content-Length value
var ErrInvalidContentLength = errors.New("invalid content-length")

// ErrMissingSeparator indicates a truncated or malformed response without a header/body boundary
var ErrMissingSeparator = errors.New("header/body separator not found")

// ErrLengthMismatch indicates a segment body that does not fit its window exactly
var ErrLengthMismatch = errors.New("segment body length mismatch")

// ErrRetriesExhausted is returned once a transient failure has used up every attempt
var ErrRetriesExhausted = errors.New("retries exhausted")

// Transient is implemented by errors that know whether a retry can help.
type Transient interface {
	Transient() bool
}

// IsRetryable reports whether err is a connection or deadline failure that
// may succeed on a fresh connection. Protocol and integrity failures are
// always permanent. An error that classifies itself through Transient wins
// over the context checks, since a dial or read timeout also matches
// context.DeadlineExceeded.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrMissingContentLength),
		errors.Is(err, ErrInvalidContentLength),
		errors.Is(err, ErrMissingSeparator),
		errors.Is(err, ErrLengthMismatch),
		errors.Is(err, ErrRetriesExhausted):
		return false
	}

	var t Transient
	if errors.As(err, &t) {
		return t.Transient()
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}

	return false
}
