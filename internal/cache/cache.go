package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopscout/shopscout/internal/storage"
)

// Cache is a TTL payload cache over the key/value store. Expired entries are
// kept around (bounded by a retention window) so Peek can serve them for
// stale-while-revalidate; Get is strict and treats them as absent.
type Cache struct {
	kv storage.KeyValue

	// now is overridable in tests.
	now func() time.Time
}

type envelope struct {
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Peeked is a Peek result, fresh or not.
type Peeked struct {
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
	IsFresh   bool
}

// Stale entries stay readable for at least this long past their TTL.
const minStaleRetention = 24 * time.Hour

func New(kv storage.KeyValue) *Cache {
	return &Cache{kv: kv, now: time.Now}
}

// Get returns the payload only while fresh; expired or absent entries return
// (nil, false, nil).
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	env, err := c.load(ctx, key)
	if err != nil || env == nil {
		return nil, false, err
	}
	if !env.ExpiresAt.After(c.now()) {
		return nil, false, nil
	}
	return env.Payload, true, nil
}

// Peek returns the entry even when expired, flagged with IsFresh, or nil when
// absent entirely.
func (c *Cache) Peek(ctx context.Context, key string) (*Peeked, error) {
	env, err := c.load(ctx, key)
	if err != nil || env == nil {
		return nil, err
	}
	return &Peeked{
		Payload:   env.Payload,
		CreatedAt: env.CreatedAt,
		ExpiresAt: env.ExpiresAt,
		IsFresh:   env.ExpiresAt.After(c.now()),
	}, nil
}

// Put overwrites unconditionally.
func (c *Cache) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := c.now()
	env := envelope{
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	retention := ttl + minStaleRetention
	return c.kv.Set(ctx, cacheKey(key), string(data), retention)
}

// PurgeExpired removes entries past their TTL. A maintenance sweep only -
// Get already ignores expired entries.
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	keys, err := c.kv.Keys(ctx, "cache:*")
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, key := range keys {
		data, err := c.kv.Get(ctx, key)
		if errors.Is(err, storage.ErrKeyMissing) {
			continue
		}
		if err != nil {
			return purged, err
		}

		var env envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil || !env.ExpiresAt.After(c.now()) {
			if err := c.kv.Delete(ctx, key); err != nil {
				return purged, err
			}
			purged++
		}
	}
	return purged, nil
}

func (c *Cache) load(ctx context.Context, key string) (*envelope, error) {
	data, err := c.kv.Get(ctx, cacheKey(key))
	if errors.Is(err, storage.ErrKeyMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, nil
	}
	return &env, nil
}

func cacheKey(key string) string {
	return fmt.Sprintf("cache:%s", key)
}
