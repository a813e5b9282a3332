package rawhttp

import (
	"context"
	"fmt"

	"github.com/datallboy/rangefetch/internal/domain"
)

// RangeMode selects how a window maps to a Range header.
type RangeMode int

const (
	// RangeInclusive asks for exactly the window: bytes=start-(end-1).
	RangeInclusive RangeMode = iota
	// RangeLegacy asks for bytes=start-end, one byte past the window, and
	// drops the trailing byte if the server sends it.
	RangeLegacy
)

func (m RangeMode) String() string {
	if m == RangeLegacy {
		return "legacy"
	}
	return "inclusive"
}

// ParseRangeMode maps the config value onto a RangeMode.
func ParseRangeMode(s string) (RangeMode, error) {
	switch s {
	case "", "inclusive":
		return RangeInclusive, nil
	case "legacy":
		return RangeLegacy, nil
	default:
		return 0, fmt.Errorf("unknown range mode %q", s)
	}
}

// RangeFor returns the header range requested for w.
func (m RangeMode) RangeFor(w domain.Window) ByteRange {
	if m == RangeLegacy {
		return ByteRange{Start: w.Start, End: w.End()}
	}
	return ByteRange{Start: w.Start, End: w.End() - 1}
}

// accepts reports whether a body of n bytes is valid for a window of want bytes.
func (m RangeMode) accepts(n, want int) bool {
	if n == want {
		return true
	}
	return m == RangeLegacy && n == want+1
}

// FetchSegment downloads window w from endpoint into dst, which must be
// exactly w.Length bytes. dst is only written once the body has been
// validated, so a failed fetch never leaves partial data behind.
func FetchSegment(ctx context.Context, endpoint string, w domain.Window, dst []byte, mode RangeMode, opts Options) error {
	if int64(len(dst)) != w.Length {
		return fmt.Errorf("segment %s: destination is %d bytes", w, len(dst))
	}

	opts.MaxResponseBytes = segmentLimit(len(dst), opts.MaxResponseBytes)

	rng := mode.RangeFor(w)
	raw, err := RoundTrip(ctx, endpoint, BuildRequest(endpoint, &rng), opts)
	if err != nil {
		return err
	}

	resp, err := Frame(raw)
	if err != nil {
		return fmt.Errorf("segment %s: %w", w, err)
	}

	if !mode.accepts(len(resp.Body), len(dst)) {
		return &LengthMismatchError{Window: w, Got: len(resp.Body), Want: len(dst)}
	}

	copy(dst, resp.Body[:len(dst)])
	return nil
}

// segmentLimit sizes the response cap for a window of n bytes: the body, the
// extra legacy byte and a header block, never more than configured.
func segmentLimit(n int, configured int64) int64 {
	limit := int64(n) + 1 + maxHeaderBytes
	if configured > 0 && configured < limit {
		return configured
	}
	return limit
}
