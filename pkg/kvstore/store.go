// Package kvstore is the shared key/value store behind rate-limit counters,
// pending OTP codes and the refresh-token registry.
package kvstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("kvstore: key not found")

type Store interface {
	// IncrWithExpiry increments key by one and, on the increment that
	// creates it, sets its expiry to ttl. Returns the new value.
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
