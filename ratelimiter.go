package qbridge

import (
	"sync"
	"time"
)

/*
RateLimiter is a token bucket. Each admitted request takes a token; a token
comes back every refillRate up to maxTokens, so short bursts pass while the
sustained rate stays bounded.
*/
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
	metrics    *Metrics
	now        func() time.Time
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	now := time.Now()
	burst := max(cfg.Burst, 1)

	return &RateLimiter{
		tokens:     burst,
		maxTokens:  burst,
		refillRate: cfg.Refill,
		lastRefill: now,
		now:        time.Now,
	}
}

// Observe attaches the metrics rejected requests are counted in.
func (rl *RateLimiter) Observe(metrics *Metrics) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.metrics = metrics
}

// Limit takes a token if one is available and reports true when none was.
func (rl *RateLimiter) Limit() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens > 0 {
		rl.tokens--
		return false
	}

	if rl.metrics != nil {
		rl.metrics.recordRateLimitHit()
	}

	return true
}

func (rl *RateLimiter) Renormalize() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
}

// Tokens returns the tokens currently available.
func (rl *RateLimiter) Tokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	return rl.tokens
}

// refill must be called with mu held. Only whole periods are credited.
func (rl *RateLimiter) refill() {
	if rl.refillRate <= 0 {
		rl.tokens = rl.maxTokens
		return
	}

	elapsed := rl.now().Sub(rl.lastRefill)
	periods := int64(elapsed / rl.refillRate)

	if periods <= 0 {
		return
	}

	rl.tokens = int(min(int64(rl.maxTokens), int64(rl.tokens)+periods))
	rl.lastRefill = rl.lastRefill.Add(time.Duration(periods) * rl.refillRate)

	if rl.tokens == rl.maxTokens {
		rl.lastRefill = rl.now()
	}
}
