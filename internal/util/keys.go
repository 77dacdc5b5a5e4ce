package util

import (
	"crypto/sha256"
	"fmt"
)

// maxRawKey is the longest user key stored verbatim. Longer keys (resource
// keys carrying query filters) are replaced by a short hash.
const maxRawKey = 128

// StorageKey returns prefix + ":" + key, hashing key when it is too long for
// comfortable use as a provider key.
func StorageKey(prefix, key string) string {
	if len(key) <= maxRawKey {
		return prefix + ":" + key
	}
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:h:%x", prefix, sum[:8])
}

// Coalesce returns def when v is the zero value of T - otherwise v.
func Coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
