// Package ephemeral is the expiring key-value store behind verification
// codes, auth challenges and the access-token blacklist.
//
// Every entry carries its own TTL. Writers that need "at most one live
// value" use Replace; concurrent Replace calls on one key resolve
// last-write-wins, there is no application-level lock.
package ephemeral

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for absent or expired keys.
var ErrNotFound = errors.New("ephemeral: key not found")

// Store is the access contract shared by the Redis and in-memory backends.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Replace deletes any existing value for key and stores value with ttl.
func Replace(ctx context.Context, s Store, key, value string, ttl time.Duration) error {
	if err := s.Delete(ctx, key); err != nil {
		return err
	}
	return s.Set(ctx, key, value, ttl)
}

// Exists reports whether key currently holds a live value.
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
