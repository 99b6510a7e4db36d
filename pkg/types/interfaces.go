package types

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Tier when a key is absent. It is the only
// Tier error the coordinator treats as a plain miss; everything else is a
// backend failure.
var ErrNotFound = errors.New("tiercache: entry not found")

// Tier is the contract for the asynchronous cache tiers (remote key-value
// store, edge cache, client-persisted store). Implementations exchange
// opaque envelope bytes produced by the codec; they never interpret the
// payload.
//
// All operations are fallible. Implementations must honor ctx deadlines and
// must be safe for concurrent use.
type Tier interface {
	// Name identifies the tier in stats, events, and logs.
	Name() string

	// Get returns the stored envelope for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the envelope under key. A non-positive ttl means the
	// backend's own default retention applies.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key in this cache's namespace.
	Clear(ctx context.Context) error

	// Close releases backend connections.
	Close() error
}
