package resfetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/unkn0wn-root/resfetch/sequencer"
)

// Resource is the type-erased view of a Controller.
type Resource interface {
	Key() string
	Trigger()
	Status() Status
	Snapshot() any
	RefreshStatus(ctx context.Context) (Status, error)
	Close(ctx context.Context) error
}

var _ Resource = (*Controller[struct{}])(nil)

// Registry owns a set of controllers that share one Sequencer. A page holding
// several independent resources registers one controller per resource.
type Registry struct {
	seq *sequencer.Sequencer

	mu        sync.RWMutex
	resources map[string]Resource
	closed    bool
}

// NewRegistry takes ownership of seq; nil => a private local sequencer.
func NewRegistry(seq *sequencer.Sequencer) *Registry {
	if seq == nil {
		seq = sequencer.New(sequencer.Options{})
	}
	return &Registry{seq: seq, resources: make(map[string]Resource)}
}

func (r *Registry) Sequencer() *sequencer.Sequencer { return r.seq }

// Register adds a controller built elsewhere. Keys are unique.
func (r *Registry) Register(res Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, dup := r.resources[res.Key()]; dup {
		return fmt.Errorf("resfetch: resource %q already registered", res.Key())
	}
	r.resources[res.Key()] = res
	return nil
}

// Add builds a controller on the registry's sequencer and registers it.
func Add[T any](r *Registry, opts Options[T]) (*Controller[T], error) {
	opts.Sequencer = r.seq
	c, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := r.Register(c); err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}
	return c, nil
}

func (r *Registry) Get(key string) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[key]
	return res, ok
}

func (r *Registry) Trigger(key string) bool {
	res, ok := r.Get(key)
	if ok {
		res.Trigger()
	}
	return ok
}

func (r *Registry) TriggerAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.resources {
		res.Trigger()
	}
}

// Refresh refreshes key and waits for it to settle.
func (r *Registry) Refresh(ctx context.Context, key string) (Status, error) {
	res, ok := r.Get(key)
	if !ok {
		return Status{}, fmt.Errorf("resfetch: unknown resource %q", key)
	}
	return res.RefreshStatus(ctx)
}

// RefreshAll refreshes every resource concurrently and returns their settled
// statuses ordered by key.
func (r *Registry) RefreshAll(ctx context.Context) ([]Status, error) {
	keys := r.Keys()
	out := make([]Status, len(keys))
	errs := make([]error, len(keys))
	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := r.Refresh(ctx, k)
			out[i] = st
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", k, err)
			}
		}()
	}
	wg.Wait()
	return out, errors.Join(errs...)
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.resources))
	for k := range r.resources {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Statuses returns every resource's status ordered by key.
func (r *Registry) Statuses() []Status {
	keys := r.Keys()
	out := make([]Status, 0, len(keys))
	for _, k := range keys {
		if res, ok := r.Get(k); ok {
			out = append(out, res.Status())
		}
	}
	return out
}

// Generations reports the latest generation per key as seen by the shared
// generation store, which includes fetches begun by other processes.
func (r *Registry) Generations(ctx context.Context) map[string]uint64 {
	return r.seq.Current(ctx, r.Keys())
}

// Close closes every controller and then the sequencer.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	res := make([]Resource, 0, len(r.resources))
	for _, c := range r.resources {
		res = append(res, c)
	}
	r.mu.Unlock()

	var errs []error
	for _, c := range res {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Key(), err))
		}
	}
	if err := r.seq.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
