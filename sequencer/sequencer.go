// Package sequencer issues fetch generations per resource key and decides
// whether a completing fetch is still the latest one.
//
// Begin always wins: it advances the key's generation and cancels the context
// handed out for the previous one. A completion whose generation is no longer
// current must be dropped by the caller.
//
// With a shared genstore, IsLatest additionally answers whether any process
// sharing the store has begun a newer generation; the controller uses it to
// keep an older refresh from overwriting a newer one in a shared cache.
package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/resfetch/classify"
	"github.com/unkn0wn-root/resfetch/genstore"
	rlog "github.com/unkn0wn-root/resfetch/log"
)

const (
	defaultSweep     = time.Hour
	defaultRetention = 24 * time.Hour
)

// Options configure a Sequencer. The zero value is ready to use.
type Options struct {
	// Store holds the counters. nil => LocalGenStore with hourly cleanup.
	Store  genstore.GenStore
	Logger rlog.Logger
}

type issued struct {
	gen    uint64
	cancel context.CancelCauseFunc
}

// Sequencer is safe for concurrent use.
type Sequencer struct {
	store genstore.GenStore
	log   rlog.Logger

	mu   sync.Mutex
	last map[string]issued
}

func New(opts Options) *Sequencer {
	s := &Sequencer{
		store: opts.Store,
		log:   rlog.OrNop(opts.Logger),
		last:  make(map[string]issued),
	}
	if s.store == nil {
		s.store = genstore.NewLocalGenStore(defaultSweep, defaultRetention)
	}
	return s
}

// Begin advances the generation of key and returns it together with a context
// that is cancelled (cause classify.ErrSuperseded) once a newer generation
// begins or the generation is released.
//
// Begin cannot fail. When the store errors, the next local generation is
// issued instead.
func (s *Sequencer) Begin(ctx context.Context, key string) (uint64, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.last[key]
	gen, err := s.store.Bump(ctx, key)
	if err != nil {
		s.log.Warn("generation bump failed; issuing local generation", rlog.Fields{"key": key, "err": err})
		gen = prev.gen + 1
	}
	if gen <= prev.gen {
		// store was pruned or reset; never reissue an old generation
		gen = prev.gen + 1
	}
	if prev.cancel != nil {
		prev.cancel(classify.ErrSuperseded)
	}

	fctx, cancel := context.WithCancelCause(ctx)
	s.last[key] = issued{gen: gen, cancel: cancel}
	return gen, fctx
}

// IsCurrent reports whether gen is the latest generation this sequencer
// issued for key. It never blocks on the store.
func (s *Sequencer) IsCurrent(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != 0 && s.last[key].gen == gen
}

// IsLatest is IsCurrent extended to every process sharing the store: with a
// RedisGenStore, a generation begun by another replica makes gen stale. Store
// errors leave the local answer in charge.
func (s *Sequencer) IsLatest(ctx context.Context, key string, gen uint64) bool {
	if !s.IsCurrent(key, gen) {
		return false
	}
	shared, err := s.store.Snapshot(ctx, key)
	if err != nil {
		s.log.Warn("generation snapshot failed; trusting local generation", rlog.Fields{"key": key, "err": err})
		return true
	}
	return shared <= gen
}

// Release cancels the context of gen once its fetch has settled. It is a no-op
// when gen has already been superseded.
func (s *Sequencer) Release(key string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.last[key]
	if !ok || cur.gen != gen || cur.cancel == nil {
		return
	}
	cur.cancel(classify.ErrSuperseded)
	cur.cancel = nil
	s.last[key] = cur
}

// Current returns the latest generation for each key as seen by the store.
// Keys never begun report 0.
func (s *Sequencer) Current(ctx context.Context, keys []string) map[string]uint64 {
	m, err := s.store.SnapshotMany(ctx, keys)
	if err == nil {
		return m
	}
	s.log.Warn("generation snapshot failed; reporting local generations", rlog.Fields{"count": len(keys), "err": err})
	out := make(map[string]uint64, len(keys))
	s.mu.Lock()
	for _, k := range keys {
		out[k] = s.last[k].gen
	}
	s.mu.Unlock()
	return out
}

// Close cancels every outstanding generation context and closes the store.
func (s *Sequencer) Close(ctx context.Context) error {
	s.mu.Lock()
	for k, is := range s.last {
		if is.cancel != nil {
			is.cancel(classify.ErrSuperseded)
			is.cancel = nil
			s.last[k] = is
		}
	}
	s.mu.Unlock()
	return s.store.Close(ctx)
}
