package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/shopscout/shopscout/internal/storage"
)

// CartSource is the cart collaborator contract. Cart CRUD lives outside the
// core; the quote path only reads lines.
type CartSource interface {
	Lines(ctx context.Context, sessionID string) ([]CartLine, error)
}

// KVCartSource reads the collaborator's cart rows from the shared key/value
// store. A missing cart is an empty cart.
type KVCartSource struct {
	kv storage.KeyValue
}

func NewKVCartSource(kv storage.KeyValue) *KVCartSource {
	return &KVCartSource{kv: kv}
}

func (s *KVCartSource) Lines(ctx context.Context, sessionID string) ([]CartLine, error) {
	data, err := s.kv.Get(ctx, fmt.Sprintf("cart:%s", sessionID))
	if errors.Is(err, storage.ErrKeyMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var lines []CartLine
	if err := json.Unmarshal([]byte(data), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}
