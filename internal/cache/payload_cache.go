package cache

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/datallboy/rangefetch/internal/domain"
)

// PayloadCache stores reassembled payloads in a blob bucket under the run id,
// next to a sidecar holding the hex digest.
type PayloadCache struct {
	bucket *blob.Bucket
}

// Open opens the bucket at rawURL, e.g. file:///var/lib/rangefetch or mem://.
// Local directories are created if missing.
func Open(ctx context.Context, rawURL string) (*PayloadCache, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid output url %q: %w", rawURL, err)
	}

	if u.Scheme == "file" {
		// Ensure the directory exists
		if err := os.MkdirAll(u.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	bucket, err := blob.OpenBucket(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open output bucket: %w", err)
	}

	return New(bucket), nil
}

// New wraps an already open bucket.
func New(bucket *blob.Bucket) *PayloadCache {
	return &PayloadCache{bucket: bucket}
}

func payloadKey(id string) string { return id + ".bin" }

func digestKey(id, algorithm string) string {
	return id + "." + strings.ToLower(algorithm)
}

func (c *PayloadCache) Put(ctx context.Context, id string, data []byte, digest domain.Digest) error {
	if err := c.bucket.WriteAll(ctx, payloadKey(id), data, &blob.WriterOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		return fmt.Errorf("failed to write payload %s: %w", id, err)
	}

	sidecar := digest.Hex() + "\n"
	if err := c.bucket.WriteAll(ctx, digestKey(id, digest.Algorithm), []byte(sidecar), &blob.WriterOptions{
		ContentType: "text/plain",
	}); err != nil {
		return fmt.Errorf("failed to write digest for %s: %w", id, err)
	}

	return nil
}

func (c *PayloadCache) Get(ctx context.Context, id string) ([]byte, error) {
	return c.bucket.ReadAll(ctx, payloadKey(id))
}

// Digest returns the hex digest stored alongside the payload.
func (c *PayloadCache) Digest(ctx context.Context, id, algorithm string) (string, error) {
	b, err := c.bucket.ReadAll(ctx, digestKey(id, algorithm))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (c *PayloadCache) Exists(ctx context.Context, id string) bool {
	ok, err := c.bucket.Exists(ctx, payloadKey(id))
	return err == nil && ok
}

func (c *PayloadCache) Close() error {
	return c.bucket.Close()
}
