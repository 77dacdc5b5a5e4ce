// Package cachestore keeps the last successful payload of each resource so a
// failed refresh can fall back to it.
//
// Entries are framed as {storedAt, payload} and written to a provider under
//
//	entry:<ns>:<key>
//
// An entry whose age reaches the store's TTL reads as absent even when the provider
// still holds it (BigCache, for one, only knows a global life window).
package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/resfetch/codec"
	"github.com/unkn0wn-root/resfetch/internal/util"
	"github.com/unkn0wn-root/resfetch/internal/wire"
	rlog "github.com/unkn0wn-root/resfetch/log"
	pr "github.com/unkn0wn-root/resfetch/provider"
)

const defaultTTL = 10 * time.Minute

// ErrCorrupt is reported to the logger when a stored frame cannot be parsed.
var ErrCorrupt = wire.ErrCorrupt

// Entry is a cached resource value and the time it was fetched.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
}

// Age returns how old the entry is at now.
func (e Entry[V]) Age(now time.Time) time.Duration { return now.Sub(e.StoredAt) }

// Options tune a Store. Namespace and Provider are required.
type Options[V any] struct {
	Namespace string // e.g. "shop:prod"
	Provider  pr.Provider
	Codec     codec.Codec[V] // nil => codec.JSON[V]

	TTL      time.Duration    // 0 => 10m
	Now      func() time.Time // nil => time.Now
	Logger   rlog.Logger
	Disabled bool
}

// Store is safe for concurrent use if its provider is.
type Store[V any] struct {
	ns       string
	provider pr.Provider
	codec    codec.Codec[V]
	ttl      time.Duration
	now      func() time.Time
	log      rlog.Logger
	enabled  bool
}

func New[V any](opts Options[V]) (*Store[V], error) {
	if opts.Provider == nil {
		return nil, errors.New("cachestore: provider is required")
	}
	if opts.Namespace == "" {
		return nil, errors.New("cachestore: namespace is required")
	}
	s := &Store[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		ttl:      util.Coalesce(opts.TTL, defaultTTL),
		now:      opts.Now,
		log:      rlog.OrNop(opts.Logger),
		enabled:  !opts.Disabled,
	}
	if s.codec == nil {
		s.codec = codec.JSON[V]{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Store[V]) Enabled() bool      { return s.enabled }
func (s *Store[V]) TTL() time.Duration { return s.ttl }

// Put records value as the latest successful fetch of key.
func (s *Store[V]) Put(ctx context.Context, key string, value V) error {
	if !s.enabled {
		return nil
	}
	payload, err := s.codec.Encode(value)
	if err != nil {
		return err
	}
	k := s.storageKey(key)
	frame := wire.EncodeEntry(s.now(), payload)
	ok, err := s.provider.Set(ctx, k, frame, int64(len(frame)), s.ttl)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("cache put rejected by provider (pressure)", rlog.Fields{"key": key})
	}
	return nil
}

// Get returns the entry for key. Missing, expired, corrupt and undecodable
// entries read as absent; the last three are deleted from the provider.
func (s *Store[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	var zero Entry[V]
	if !s.enabled {
		return zero, false, nil
	}
	k := s.storageKey(key)
	raw, ok, err := s.provider.Get(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	storedAt, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		s.log.Warn("dropping corrupt cache entry", rlog.Fields{"key": key, "err": err})
		_ = s.provider.Del(ctx, k) // self-heal
		return zero, false, nil
	}
	if s.now().Sub(storedAt) >= s.ttl {
		_ = s.provider.Del(ctx, k)
		return zero, false, nil
	}
	v, err := s.codec.Decode(payload)
	if err != nil {
		s.log.Warn("dropping undecodable cache entry", rlog.Fields{"key": key, "err": err})
		_ = s.provider.Del(ctx, k) // self-heal
		return zero, false, nil
	}
	return Entry[V]{Value: v, StoredAt: storedAt}, true, nil
}

// Delete removes the entry for key.
func (s *Store[V]) Delete(ctx context.Context, key string) error {
	if !s.enabled {
		return nil
	}
	return s.provider.Del(ctx, s.storageKey(key))
}

// Close closes the provider.
func (s *Store[V]) Close(ctx context.Context) error {
	return s.provider.Close(ctx)
}

func (s *Store[V]) storageKey(key string) string {
	// isolate by namespace
	return util.StorageKey("entry:"+s.ns, key)
}
