package webhooks

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DestinationLimiter applies a token bucket per destination so one noisy
// workspace cannot monopolize outbound delivery capacity. Idle buckets
// fall out of the LRU after the refill window.
type DestinationLimiter struct {
	mu       sync.Mutex
	buckets  *lru.LRU[int64, *tokenBucket]
	capacity float64
	window   time.Duration
	now      func() time.Time
}

type tokenBucket struct {
	tokens   float64
	lastFill time.Time
}

// NewDestinationLimiter creates a limiter allowing capacity sends per
// destination per window
func NewDestinationLimiter(capacity int, window time.Duration) *DestinationLimiter {
	return &DestinationLimiter{
		buckets:  lru.NewLRU[int64, *tokenBucket](10000, nil, 2*window),
		capacity: float64(capacity),
		window:   window,
		now:      time.Now,
	}
}

// Allow reports whether the destination may send now and consumes a token
// if so
func (l *DestinationLimiter) Allow(destinationID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets.Get(destinationID)
	if !ok {
		b = &tokenBucket{tokens: l.capacity, lastFill: now}
		l.buckets.Add(destinationID, b)
	}

	// Refill proportionally to elapsed time, capped at capacity
	elapsed := now.Sub(b.lastFill)
	b.tokens += l.capacity * float64(elapsed) / float64(l.window)
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
