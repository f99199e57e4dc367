package webhooks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDestinationLimiterExhaustsBucket(t *testing.T) {
	limiter := NewDestinationLimiter(2, time.Minute)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow(1))
	assert.True(t, limiter.Allow(1))
	assert.False(t, limiter.Allow(1))

	// other destinations have their own buckets
	assert.True(t, limiter.Allow(2))
}

func TestDestinationLimiterRefills(t *testing.T) {
	limiter := NewDestinationLimiter(2, time.Minute)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow(1))
	assert.True(t, limiter.Allow(1))
	assert.False(t, limiter.Allow(1))

	// half a window refills half the bucket
	now = now.Add(30 * time.Second)
	assert.True(t, limiter.Allow(1))
	assert.False(t, limiter.Allow(1))

	// a full window restores full capacity, capped
	now = now.Add(10 * time.Minute)
	assert.True(t, limiter.Allow(1))
	assert.True(t, limiter.Allow(1))
	assert.False(t, limiter.Allow(1))
}
