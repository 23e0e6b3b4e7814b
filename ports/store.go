package ports

import "context"

// Store is durable string-keyed storage for session entries.
// Get returns core.ErrSessionNotFound for missing keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}
