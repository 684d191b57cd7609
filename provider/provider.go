// Package provider defines the storage abstraction used by shopcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// Important: the keyspaces "page:<ns>:" and "product:<ns>:" are owned by
// shopcache. External code MUST NOT write values under these prefixes. Foreign
// writes are treated as corruption by the wire-format check and deleted.
//
// Only the memory provider keeps the "never evicted" guarantee. Bounded stores
// (bigcache, ristretto) and shared ones (redis) may drop entries; a dropped
// entry is a plain miss on the next read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs.
// Must be safe for concurrent use and must be byte-for-byte
// transparent: Get must return exactly the []byte previously passed to Set for
// the same key.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0 means no expiry). May ignore
	// cost if unsupported. Returns ok=false when the store rejected the write
	// under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Lister is implemented by providers that can enumerate stored keys.
// Shared providers should implement it: the cache then sweeps and clears
// entries written by other processes, not only its own.
type Lister interface {
	// Keys returns every key starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
