// Package cache provides a small byte cache with memory and redis
// backends. It backs the one-time-use guard for OAuth state tokens.
package cache

import (
	"context"
	"time"
)

// Cache is the minimal contract both backends implement.
type Cache interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value with a TTL (0 means the backend default).
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error

	// Add stores the value only if the key is absent. Returns true when
	// the value was stored. This is the primitive behind one-shot keys.
	Add(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error)

	// Delete removes a key. Removing a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
