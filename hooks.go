package resfetch

import (
	"time"

	"github.com/unkn0wn-root/resfetch/classify"
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The controller calls them from its event loop.
type Hooks interface {
	// A completion (result or error) arrived for a generation that is no
	// longer current, or for an attempt the watchdog already abandoned.
	Superseded(key string, gen uint64)

	// A retryable failure scheduled attempt number attempt after delay.
	RetryScheduled(key string, attempt int, delay time.Duration, kind classify.Kind)

	// The watchdog fired before the attempt settled.
	WatchdogFired(key string, attempt int)

	// Fetch committed fresh data. elapsed spans Trigger to commit.
	FetchSucceeded(key string, attempts int, elapsed time.Duration)

	// Terminal failure. stale reports whether cached data was published.
	FetchFailed(key string, kind classify.Kind, stale bool)

	// Writing a successful result to the cache store failed.
	CacheWriteFailed(key string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Superseded(string, uint64)                                {}
func (NopHooks) RetryScheduled(string, int, time.Duration, classify.Kind) {}
func (NopHooks) WatchdogFired(string, int)                                {}
func (NopHooks) FetchSucceeded(string, int, time.Duration)                {}
func (NopHooks) FetchFailed(string, classify.Kind, bool)                  {}
func (NopHooks) CacheWriteFailed(string, error)                           {}

// Multi fans every event out to hs in order.
func Multi(hs ...Hooks) Hooks { return multiHooks(hs) }

type multiHooks []Hooks

func (m multiHooks) Superseded(k string, gen uint64) {
	for _, h := range m {
		h.Superseded(k, gen)
	}
}

func (m multiHooks) RetryScheduled(k string, n int, d time.Duration, kind classify.Kind) {
	for _, h := range m {
		h.RetryScheduled(k, n, d, kind)
	}
}

func (m multiHooks) WatchdogFired(k string, n int) {
	for _, h := range m {
		h.WatchdogFired(k, n)
	}
}

func (m multiHooks) FetchSucceeded(k string, n int, elapsed time.Duration) {
	for _, h := range m {
		h.FetchSucceeded(k, n, elapsed)
	}
}

func (m multiHooks) FetchFailed(k string, kind classify.Kind, stale bool) {
	for _, h := range m {
		h.FetchFailed(k, kind, stale)
	}
}

func (m multiHooks) CacheWriteFailed(k string, err error) {
	for _, h := range m {
		h.CacheWriteFailed(k, err)
	}
}
