package cache

import (
	"context"
	"time"
)

// Cache is the key-value surface the services rely on.
// Redis is the production implementation; tests may supply in-memory fakes.
type Cache interface {
	// Get returns "" with a nil error when the key is missing.
	Get(ctx context.Context, key string) (string, error)
	// Set stores a value; a zero ttl means no expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// SetNX sets the value only if the key does not exist.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)

	Ping(ctx context.Context) error
	Close() error
}
