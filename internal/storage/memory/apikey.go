package memory

import (
	"context"
	"sync"

	"github.com/xenking/kart-promo/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository is an in-memory API key store keyed by hash.
type APIKeyRepository struct {
	mu   sync.RWMutex
	keys map[string]auth.APIKeyInfo
}

func NewAPIKeyRepository(keys ...auth.APIKeyInfo) *APIKeyRepository {
	r := &APIKeyRepository{keys: make(map[string]auth.APIKeyInfo, len(keys))}
	for _, k := range keys {
		r.keys[k.KeyHash] = k
	}
	return r
}

func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &k, nil
}
