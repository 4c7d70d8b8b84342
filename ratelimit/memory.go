package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// MemoryLimiter keeps one token bucket per key, buckets idle for longer
// than their period are evicted.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets *cache.Cache

	now func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: cache.New(time.Hour, 10*time.Minute), now: time.Now}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit Limit) (Decision, error) {
	now := l.now()
	bucket := l.bucket(key, limit)

	reservation := bucket.ReserveN(now, 1)
	if !reservation.OK() {
		return Decision{Allowed: false, RetryAfter: limit.Period}, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	remaining := int(math.Floor(bucket.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

func (l *MemoryLimiter) bucket(key string, limit Limit) *rate.Limiter {
	cacheKey := limit.String() + "|" + key
	l.mu.Lock()
	defer l.mu.Unlock()
	if cached, found := l.buckets.Get(cacheKey); found {
		// touch, an active bucket must not expire
		l.buckets.Set(cacheKey, cached, limit.Period*2)
		return cached.(*rate.Limiter)
	}
	bucket := rate.NewLimiter(rate.Every(limit.Period/time.Duration(limit.Requests)), limit.Requests)
	l.buckets.Set(cacheKey, bucket, limit.Period*2)
	return bucket
}
