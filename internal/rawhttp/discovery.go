package rawhttp

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/datallboy/rangefetch/internal/domain"
)

// DiscoverSize requests the whole resource once and reads its declared
// Content-Length. The body is drained and discarded, never buffered.
func DiscoverSize(ctx context.Context, endpoint string, opts Options) (domain.Resource, error) {
	resp, err := RoundTripHead(ctx, endpoint, BuildRequest(endpoint, nil), opts)
	if err != nil {
		if errors.Is(err, domain.ErrMissingSeparator) {
			return domain.Resource{}, fmt.Errorf("size discovery: %w", err)
		}
		return domain.Resource{}, err
	}

	n, err := ParseContentLength(resp)
	if err != nil {
		return domain.Resource{}, err
	}

	return domain.Resource{Endpoint: endpoint, TotalLength: n}, nil
}

// ParseContentLength extracts a strictly positive 32-bit Content-Length.
func ParseContentLength(resp Response) (uint32, error) {
	v, ok := resp.Header("Content-Length")
	if !ok {
		return 0, domain.ErrMissingContentLength
	}

	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidContentLength, v)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: zero length", domain.ErrInvalidContentLength)
	}

	return uint32(n), nil
}
