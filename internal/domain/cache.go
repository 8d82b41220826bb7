package domain

import (
	"context"
	"time"
)

// CacheStore is a key/value store with per-key expiry. Values are opaque
// bytes; callers own their encoding.
type CacheStore interface {
	// SetWithTTL stores value under key, expiring after ttl.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Set stores value under key with no expiry.
	Set(ctx context.Context, key string, value []byte) error

	// Get returns the live value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Keys lists every live key.
	Keys(ctx context.Context) ([]string, error)
}
