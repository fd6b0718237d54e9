package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopscout/shopscout/internal/storage"
)

// ErrCircuitOpen is returned when a provider's circuit is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker is a per-provider failure counter with an open window, persisted
// through the shared key/value store so all instances see the same state.
// There is no half-open probing: once the window elapses the next call is
// simply allowed and judged on its own merit.
type Breaker struct {
	kv storage.KeyValue

	tripAfter int           // Consecutive failures before opening
	openFor   time.Duration // How long to stay open

	// now is overridable in tests.
	now func() time.Time
}

type Config struct {
	TripAfter int           // Default: 3
	OpenFor   time.Duration // Default: 5 minutes
}

type providerHealth struct {
	ConsecutiveFailures int   `json:"consecutive_failures"`
	OpenUntil           int64 `json:"open_until"` // unix seconds, 0 when closed
}

func New(kv storage.KeyValue, cfg Config) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 3
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 5 * time.Minute
	}

	return &Breaker{
		kv:        kv,
		tripAfter: cfg.TripAfter,
		openFor:   cfg.OpenFor,
		now:       time.Now,
	}
}

// IsOpen is a pure read: open iff open_until is in the future.
func (b *Breaker) IsOpen(ctx context.Context, provider string) (bool, error) {
	health, err := b.load(ctx, provider)
	if err != nil {
		return false, err
	}
	return health.OpenUntil > b.now().Unix(), nil
}

// Guard returns ErrCircuitOpen when the provider's circuit is open.
func (b *Breaker) Guard(ctx context.Context, provider string) error {
	open, err := b.IsOpen(ctx, provider)
	if err != nil {
		return err
	}
	if open {
		return fmt.Errorf("%s: %w", provider, ErrCircuitOpen)
	}
	return nil
}

// RecordFailure increments the consecutive failure count. Crossing (or
// staying past) the threshold refreshes the open window.
func (b *Breaker) RecordFailure(ctx context.Context, provider string) error {
	health, err := b.load(ctx, provider)
	if err != nil {
		return err
	}

	health.ConsecutiveFailures++
	if health.ConsecutiveFailures >= b.tripAfter {
		health.OpenUntil = b.now().Add(b.openFor).Unix()
	}

	return b.save(ctx, provider, health)
}

// RecordSuccess resets the failure count and closes the circuit immediately.
func (b *Breaker) RecordSuccess(ctx context.Context, provider string) error {
	return b.save(ctx, provider, providerHealth{})
}

// State reports closed/open for health reporting.
func (b *Breaker) State(ctx context.Context, provider string) (State, error) {
	open, err := b.IsOpen(ctx, provider)
	if err != nil {
		return StateClosed, err
	}
	if open {
		return StateOpen, nil
	}
	return StateClosed, nil
}

// Failures reports the current consecutive failure count.
func (b *Breaker) Failures(ctx context.Context, provider string) (int, error) {
	health, err := b.load(ctx, provider)
	if err != nil {
		return 0, err
	}
	return health.ConsecutiveFailures, nil
}

func (b *Breaker) load(ctx context.Context, provider string) (providerHealth, error) {
	data, err := b.kv.Get(ctx, healthKey(provider))
	if errors.Is(err, storage.ErrKeyMissing) {
		return providerHealth{}, nil
	}
	if err != nil {
		return providerHealth{}, err
	}

	var health providerHealth
	if err := json.Unmarshal([]byte(data), &health); err != nil {
		return providerHealth{}, nil
	}
	return health, nil
}

func (b *Breaker) save(ctx context.Context, provider string, health providerHealth) error {
	data, err := json.Marshal(health)
	if err != nil {
		return err
	}
	return b.kv.Set(ctx, healthKey(provider), string(data), 0)
}

func healthKey(provider string) string {
	return fmt.Sprintf("breaker:%s", provider)
}
