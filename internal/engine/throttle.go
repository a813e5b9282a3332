package engine

import (
	"math"

	"golang.org/x/time/rate"
)

// newThrottle limits how fast requests are issued. rps <= 0 means unlimited.
func newThrottle(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(math.Ceil(rps))
	return rate.NewLimiter(rate.Limit(rps), burst)
}
