package metadata

import (
	"context"
)

// Repository is a small key/value store for engine bookkeeping (pull
// cursors, cleaner schedule).
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany writes every pair atomically.
	SetMany(ctx context.Context, values map[string][]byte) error
	// List returns the pairs whose key starts with prefix; "" lists all.
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	// DeleteMany removes the given keys atomically. Missing keys are ignored.
	DeleteMany(ctx context.Context, keys ...string) error
}
