// Package provider defines the storage medium behind the cache store.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// Important: the keyspace "entry:<ns>:" is owned by cachestore. External code
// MUST NOT write values under this prefix. Foreign writes fail wire-format
// validation and are deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Pinger is implemented by remote providers that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks p when it is remote. In-process providers are always reachable.
func Ping(ctx context.Context, p Provider) error {
	if pp, ok := p.(Pinger); ok {
		return pp.Ping(ctx)
	}
	return nil
}
