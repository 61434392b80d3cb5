package cache

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound is returned when no unexpired token is stored under a key
var ErrTokenNotFound = errors.New("cache: token not found")

// TokenStore caches provider access tokens so that every request does not
// trigger an OAuth exchange. Implementations must be safe for concurrent use.
type TokenStore interface {
	// Get returns the token stored under key or ErrTokenNotFound
	Get(ctx context.Context, key string) (string, error)
	// Set stores token under key for ttl
	Set(ctx context.Context, key, token string, ttl time.Duration) error
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// Close releases resources held by the store
	Close() error
}
