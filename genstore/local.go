package genstore

import (
	"context"
	"sync"
	"time"
)

type localGen struct {
	gen     uint64
	touched time.Time
}

// LocalGenStore keeps generations in-process; the default for a single
// storefront instance.
//
// With a cleanup interval, resources not fetched for longer than retention are
// pruned and restart at 0. The sequencer remembers what it handed out and
// never reissues a generation, so pruning is safe.
type LocalGenStore struct {
	mu   sync.RWMutex
	gens map[string]localGen
	now  func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{gens: make(map[string]localGen), now: time.Now}
	if cleanupInterval > 0 && retention > 0 {
		s.stop = make(chan struct{})
		s.wg.Add(1)
		go s.sweep(cleanupInterval, retention)
	}
	return s
}

func (s *LocalGenStore) sweep(every, retention time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Cleanup(retention)
		case <-s.stop:
			return
		}
	}
}

func (s *LocalGenStore) Snapshot(_ context.Context, key string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[key].gen, nil
}

// SnapshotMany reads every key under one read lock.
func (s *LocalGenStore) SnapshotMany(_ context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	s.mu.RLock()
	for _, k := range keys {
		out[k] = s.gens[k].gen
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *LocalGenStore) Bump(_ context.Context, key string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.gens[key]
	g.gen++
	g.touched = s.now()
	s.gens[key] = g
	return g.gen, nil
}

// Cleanup drops keys last bumped more than retention ago.
func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.now().Add(-retention)
	s.mu.Lock()
	for k, g := range s.gens {
		if g.touched.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

// Close stops the cleanup loop. Idempotent.
func (s *LocalGenStore) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stop != nil {
			close(s.stop)
			s.wg.Wait()
		}
	})
	return nil
}
