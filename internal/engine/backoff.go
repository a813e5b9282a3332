package engine

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds how often and how patiently a transient failure is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Delay returns the wait before the given retry (1 = first retry): the
// initial backoff doubled per attempt, capped, with +/-20% jitter.
func (p RetryPolicy) Delay(retry int) time.Duration {
	if p.InitialBackoff <= 0 || retry <= 0 {
		return 0
	}

	d := p.InitialBackoff
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			d = p.MaxBackoff
			break
		}
	}

	jitter := float64(d) * 0.2 * (rand.Float64()*2 - 1)
	return time.Duration(float64(d) + jitter)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
