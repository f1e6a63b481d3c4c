package webhooks

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter limits deliveries per webhook. Each webhook gets a rate.Limiter holding
// maxRequests tokens and regaining one every period/maxRequests.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter allows maxRequests per period and webhook. A non-positive maxRequests
// disables limiting.
func NewRateLimiter(maxRequests int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    rate.Inf,
		burst:    maxRequests,
		now:      time.Now,
	}
	if maxRequests > 0 && period > 0 {
		rl.limit = rate.Every(period / time.Duration(maxRequests))
	}
	return rl
}

// Allow takes a token for the webhook if one is available
func (rl *RateLimiter) Allow(webhookID int64) bool {
	return rl.limiter(webhookID).AllowN(rl.now(), 1)
}

// Remaining returns the whole tokens left for the webhook
func (rl *RateLimiter) Remaining(webhookID int64) int {
	tokens := int(rl.limiter(webhookID).TokensAt(rl.now()))
	return max(tokens, 0)
}

// Reset forgets the webhook's limiter, so the next delivery starts with a full bucket
func (rl *RateLimiter) Reset(webhookID int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, webhookID)
}

func (rl *RateLimiter) limiter(webhookID int64) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[webhookID]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[webhookID] = l
	}
	return l
}
