package lane

import (
	"sync"
	"time"
)

// Limiter is a per-provider token-bucket rate limiter shared across
// concurrent queries. Buckets refill continuously at the configured rate;
// Reserve never blocks — lanes that cannot reserve report rate_limited
// and rely on their bounded retry.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time // swappable in tests
}

type bucket struct {
	rate   float64 // tokens per second
	burst  float64
	tokens float64
	last   time.Time
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Configure sets the rate and burst for a provider. Rate ≤ 0 removes the
// bucket, which makes Reserve always succeed for that provider.
func (l *Limiter) Configure(provider string, rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rps <= 0 {
		delete(l.buckets, provider)
		return
	}
	if burst < 1 {
		burst = 1
	}
	l.buckets[provider] = &bucket{
		rate:   rps,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   l.now(),
	}
}

// Reserve attempts to take cost tokens from the provider's bucket.
// Unknown providers are unlimited.
func (l *Limiter) Reserve(provider string, cost float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[provider]
	if !ok {
		return true
	}

	now := l.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.last = now
	}

	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}
