package server

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter throttles lines per connection: a bucket of burst tokens that
// refills completely over interval.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	limit := rate.Limit(float64(burst) / interval.Seconds())
	return &rateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.Allow()
}
