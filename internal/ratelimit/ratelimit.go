package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces outbound requests to a single upstream endpoint
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing rps requests per second with a burst of
// one second's worth of requests. Non-positive rates fall back to 1/s.
func New(rps float64) *Limiter {
	if rps <= 0 {
		rps = 1.0
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request may proceed or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed now without waiting
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
