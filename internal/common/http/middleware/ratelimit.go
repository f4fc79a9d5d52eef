package middleware

import (
	"context"
	"fmt"
	"time"

	"codearena/internal/common/cache"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter enforces fixed-window limits in Redis.
type RateLimiter struct {
	cache   cache.Cache
	timeout time.Duration
}

// NewRateLimiter creates a limiter. A nil cache disables limiting.
func NewRateLimiter(c cache.Cache, timeout time.Duration) *RateLimiter {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RateLimiter{cache: c, timeout: timeout}
}

// Allow counts one hit on key and fails with TooManyRequests above max.
func (r *RateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if r == nil || r.cache == nil || max <= 0 || window <= 0 {
		return nil
	}
	ctxCache, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	acquired, err := r.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = r.cache.Incr(ctxCache, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
		ttl, ttlErr := r.cache.TTL(ctxCache, key)
		if ttlErr == nil && ttl <= 0 {
			_ = r.cache.Expire(ctxCache, key, window)
		}
	}
	if int(count) > max {
		return pkgerrors.New(pkgerrors.SubmitTooFrequently).WithDetail("retry_after_seconds", int(window.Seconds()))
	}
	return nil
}

// RateLimitMiddleware limits each authenticated user on routeKey.
// It must run after AuthMiddleware.
func RateLimitMiddleware(limiter *RateLimiter, routeKey string, max int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.Next()
			return
		}
		key := fmt.Sprintf("arena:rate:%s:%d", routeKey, userID)
		if err := limiter.Allow(c.Request.Context(), key, max, window); err != nil {
			response.AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
