package creation

import (
	"sync"
	"time"
)

// tokenBucket rate-limits event creation, tied to the transaction pool's
// backpressure signal via the configured rate (spec.md §4.14). No ratelimit
// library appears anywhere in the retrieved corpus, so this is a small
// stdlib implementation rather than an invented dependency.
type tokenBucket struct {
	mu       sync.Mutex
	rate     float64 // tokens/sec
	burst    float64
	tokens   float64
	lastFill time.Time
}

func newTokenBucket(rate, burst float64) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = rate
	}
	return &tokenBucket{rate: rate, burst: burst, tokens: burst, lastFill: time.Now()}
}

// Allow reports whether a token is available, consuming one if so.
func (b *tokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.lastFill = now
	b.tokens += elapsed * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
