// Package store holds room documents under string keys with a time-to-live.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Store is a single-key document store. Every Set refreshes the key's TTL.
// Get returns ErrNotFound for keys that are absent or expired.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, doc []byte, ttl time.Duration) error
}
