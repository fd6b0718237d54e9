package storage

import (
	"context"
	"errors"
	"time"
)

// ErrKeyMissing is returned by KeyValue.Get when the key does not exist.
var ErrKeyMissing = errors.New("key missing")

// KeyValue is the narrow contract the resilience components use for shared
// state (rate-limit buckets, breaker state, cache entries). Implementations:
// RedisClient for production, Memory for tests and single-node dev mode.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}
