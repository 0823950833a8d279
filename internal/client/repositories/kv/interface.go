package kv

import "context"

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Table selects the SQLite table a repository works on.
type Table string

const (
	TablePlain  Table = "kv"
	TableSecure Table = "secure_kv"
)
