package rawhttp

import (
	"context"

	"github.com/datallboy/rangefetch/internal/domain"
)

// Client binds an endpoint, range mode and session options so callers can
// discover and fetch without repeating them.
type Client struct {
	Endpoint string
	Mode     RangeMode
	Options  Options
}

func NewClient(endpoint string, mode RangeMode, opts Options) *Client {
	return &Client{Endpoint: endpoint, Mode: mode, Options: opts}
}

func (c *Client) Discover(ctx context.Context) (domain.Resource, error) {
	return DiscoverSize(ctx, c.Endpoint, c.Options)
}

func (c *Client) Fetch(ctx context.Context, w domain.Window, dst []byte) error {
	return FetchSegment(ctx, c.Endpoint, w, dst, c.Mode, c.Options)
}
