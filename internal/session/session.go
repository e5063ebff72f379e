// Package session provides the short-lived key/value store that holds the
// active export run's correlation token.
//
// The token is a transient: it has a bounded TTL and is never persisted to
// structured storage. A missing or expired key reads back as ErrNotFound,
// which the scheduler treats the same as a token mismatch.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("session: not found")

// Store is a TTL key/value store for export session state.
// Satisfied by the Redis-backed store and the in-memory store.
type Store interface {
	// Get returns the value for key, or ErrNotFound if the key does not
	// exist or its TTL has elapsed.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with the given TTL, replacing any
	// previous value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
