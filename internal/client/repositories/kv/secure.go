package kv

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophbell/internal/cryptox"
)

// SecureRepository encrypts values with AES-GCM before handing them to the
// wrapped repository. Keys are stored in clear.
type SecureRepository struct {
	inner Repository
	key   []byte
}

func NewSecureRepository(inner Repository, key []byte) *SecureRepository {
	return &SecureRepository{inner: inner, key: key}
}

func (r *SecureRepository) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := r.inner.Get(ctx, key)
	if err != nil || sealed == nil {
		return nil, err
	}
	plain, err := cryptox.Open(r.key, sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secure[%s]: %w", key, err)
	}
	return plain, nil
}

func (r *SecureRepository) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := cryptox.Seal(r.key, value)
	if err != nil {
		return fmt.Errorf("failed to encrypt secure[%s]: %w", key, err)
	}
	return r.inner.Set(ctx, key, sealed)
}

func (r *SecureRepository) Delete(ctx context.Context, key string) error {
	return r.inner.Delete(ctx, key)
}

func (r *SecureRepository) Clear(ctx context.Context) error {
	return r.inner.Clear(ctx)
}
