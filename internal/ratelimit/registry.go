package ratelimit

import (
	"context"
	"fmt"
)

// OpClass names the operation classes that get their own bucket settings.
const (
	OpStoreSearch   = "store_search"
	OpProductLookup = "product_lookup"
	OpProductSearch = "product_search"
	OpQuote         = "quote"
	OpSubmitPrice   = "submit_price"
	OpLivePrice     = "live_price"
	OpGeocode       = "geocode"
	OpPOISearch     = "poi_search"
)

// BucketConfig is one operation class's bucket shape.
type BucketConfig struct {
	Capacity   float64 `json:"capacity"`
	RefillRate float64 `json:"refill_per_second"`
}

// Registry holds one TokenBucket per operation class. Keys are partitioned by
// session, so the persisted state is one row per (operation class, session).
type Registry struct {
	buckets map[string]*TokenBucket
}

func NewRegistry() *Registry {
	return &Registry{buckets: make(map[string]*TokenBucket)}
}

func (r *Registry) Register(op string, bucket *TokenBucket) {
	r.buckets[op] = bucket
}

// Take consumes cost tokens for the (op, session) pair. Unregistered
// operation classes are allowed through.
func (r *Registry) Take(ctx context.Context, op, session string, cost float64) (bool, error) {
	bucket, ok := r.buckets[op]
	if !ok {
		return true, nil
	}
	return bucket.Take(ctx, fmt.Sprintf("%s:%s", op, session), cost)
}

func (r *Registry) Bucket(op string) (*TokenBucket, bool) {
	bucket, ok := r.buckets[op]
	return bucket, ok
}
