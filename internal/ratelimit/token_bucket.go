package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopscout/shopscout/internal/storage"
)

type TokenBucket struct {
	kv         storage.KeyValue
	capacity   float64 // Total capacity of the bucket
	refillRate float64 // Tokens per second

	// now is overridable in tests.
	now func() time.Time
}

type bucketState struct {
	Tokens    float64   `json:"tokens"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewTokenBucket(kv storage.KeyValue, capacity, refillRate float64) *TokenBucket {
	return &TokenBucket{
		kv:         kv,
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
}

// Take refills the bucket for the elapsed time, then deducts cost if enough
// tokens remain. The new state is persisted even on denial, so the decay is
// recorded. Concurrent takes for the same key can race; a slight
// over-admission is acceptable for abuse mitigation.
func (t *TokenBucket) Take(ctx context.Context, key string, cost float64) (bool, error) {
	kvKey := bucketKey(key)

	state, err := t.load(ctx, kvKey)
	if err != nil {
		return false, err
	}

	now := t.now()
	elapsed := now.Sub(state.UpdatedAt).Seconds()
	state.Tokens = math.Min(state.Tokens+elapsed*t.refillRate, t.capacity)
	state.UpdatedAt = now

	allowed := state.Tokens >= cost
	if allowed {
		state.Tokens -= cost
	}

	if err := t.save(ctx, kvKey, state); err != nil {
		return false, err
	}

	return allowed, nil
}

// Remaining reports the current token count with refill applied, without
// consuming anything.
func (t *TokenBucket) Remaining(ctx context.Context, key string) (float64, error) {
	state, err := t.load(ctx, bucketKey(key))
	if err != nil {
		return 0, err
	}

	elapsed := t.now().Sub(state.UpdatedAt).Seconds()
	return math.Min(state.Tokens+elapsed*t.refillRate, t.capacity), nil
}

// ResetAt returns the time at which the bucket is full again.
func (t *TokenBucket) ResetAt(ctx context.Context, key string) (time.Time, error) {
	remaining, err := t.Remaining(ctx, key)
	if err != nil {
		return time.Time{}, err
	}

	secondsToFull := (t.capacity - remaining) / t.refillRate
	return t.now().Add(time.Duration(secondsToFull * float64(time.Second))), nil
}

func (t *TokenBucket) Capacity() float64 {
	return t.capacity
}

func (t *TokenBucket) load(ctx context.Context, kvKey string) (bucketState, error) {
	data, err := t.kv.Get(ctx, kvKey)
	if errors.Is(err, storage.ErrKeyMissing) {
		// First request for this key, bucket starts full
		return bucketState{Tokens: t.capacity, UpdatedAt: t.now()}, nil
	}
	if err != nil {
		return bucketState{}, err
	}

	var state bucketState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return bucketState{Tokens: t.capacity, UpdatedAt: t.now()}, nil
	}
	return state, nil
}

func (t *TokenBucket) save(ctx context.Context, kvKey string, state bucketState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return t.kv.Set(ctx, kvKey, string(data), time.Hour)
}

func bucketKey(key string) string {
	return fmt.Sprintf("ratelimit:bucket:%s", key)
}
