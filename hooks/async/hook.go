// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/resfetch"
//	"github.com/unkn0wn-root/resfetch/hooks/async"
//	"github.com/unkn0wn-root/resfetch/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SupersededEvery: 10, // sample logs: ~every 10th dropped completion
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	products, _ := resfetch.New[[]Product](resfetch.Options[[]Product]{
//	    Key:   "products",
//	    Fetch: fetchProducts,
//	    Hooks: hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/resfetch"
	"github.com/unkn0wn-root/resfetch/classify"
)

// Hooks moves the inner hooks off the controller's event loop. Events are
// dropped when the queue is full.
type Hooks struct {
	inner   resfetch.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped uint64
}

var _ resfetch.Hooks = (*Hooks)(nil)

func New(inner resfetch.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains the queue. Events arriving afterwards are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	select {
	case h.q <- f:
		h.mu.RUnlock()
	default: // drop
		h.mu.RUnlock()
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

func (h *Hooks) Superseded(k string, gen uint64) { h.try(func() { h.inner.Superseded(k, gen) }) }
func (h *Hooks) WatchdogFired(k string, n int)   { h.try(func() { h.inner.WatchdogFired(k, n) }) }
func (h *Hooks) CacheWriteFailed(k string, err error) {
	h.try(func() { h.inner.CacheWriteFailed(k, err) })
}
func (h *Hooks) RetryScheduled(k string, n int, d time.Duration, kind classify.Kind) {
	h.try(func() { h.inner.RetryScheduled(k, n, d, kind) })
}
func (h *Hooks) FetchSucceeded(k string, n int, elapsed time.Duration) {
	h.try(func() { h.inner.FetchSucceeded(k, n, elapsed) })
}
func (h *Hooks) FetchFailed(k string, kind classify.Kind, stale bool) {
	h.try(func() { h.inner.FetchFailed(k, kind, stale) })
}
