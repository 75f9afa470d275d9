// Package cache defines the TTL-bounded response cache used by the pipeline.
// Cache failures never fail a request; the pipeline treats every operation
// here as a best-effort optimization.
package cache

import (
	"context"
	"time"
)

// Cache is a TTL-bounded get/set/delete store keyed by strings.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached value and whether it was present and unexpired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores the value under key for the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}
