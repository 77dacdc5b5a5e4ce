package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGenStore shares generations between storefront replicas that refresh
// the same Redis cache, and survives restarts. Keys are
//
//	gen:<ns>:<resource key>
//
// With ttl > 0 every Bump refreshes the key's expiry, so resources nobody
// fetches any more disappear. An expired key restarts at 0; the sequencer
// never reissues a generation it handed out, so that is safe.
type RedisGenStore struct {
	rdb redis.UniversalClient
	ns  string
	ttl time.Duration
}

var _ GenStore = (*RedisGenStore)(nil)

// NewRedisGenStore does not own client; Close leaves it open.
func NewRedisGenStore(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisGenStore {
	return &RedisGenStore{rdb: client, ns: namespace, ttl: ttl}
}

func (s *RedisGenStore) key(k string) string { return "gen:" + s.ns + ":" + k }

func (s *RedisGenStore) Snapshot(ctx context.Context, key string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return parseGen(key, res)
}

// SnapshotMany is one MGET.
func (s *RedisGenStore) SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rk := make([]string, len(keys))
	for i, k := range keys {
		rk[i] = s.key(k)
	}
	vals, err := s.rdb.MGet(ctx, rk...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if v == nil {
			out[keys[i]] = 0
			continue
		}
		g, err := parseGen(keys[i], fmt.Sprint(v))
		if err != nil {
			return nil, err
		}
		out[keys[i]] = g
	}
	return out, nil
}

// Bump is INCR, plus EXPIRE in the same MULTI when a ttl is set.
func (s *RedisGenStore) Bump(ctx context.Context, key string) (uint64, error) {
	k := s.key(key)
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		return uint64(v), err
	}
	var incr *redis.IntCmd
	if _, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	}); err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is a no-op; Redis expires keys itself.
func (s *RedisGenStore) Cleanup(time.Duration) {}

func (s *RedisGenStore) Close(context.Context) error { return nil }

func parseGen(key, v string) (uint64, error) {
	g, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genstore: bad generation for %q: %w", key, err)
	}
	return g, nil
}
