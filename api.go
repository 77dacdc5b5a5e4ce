package resfetch

import (
	"context"
	"time"

	"github.com/unkn0wn-root/resfetch/backoff"
	"github.com/unkn0wn-root/resfetch/cachestore"
	"github.com/unkn0wn-root/resfetch/codec"
	"github.com/unkn0wn-root/resfetch/internal/util"
	pr "github.com/unkn0wn-root/resfetch/provider"
	"github.com/unkn0wn-root/resfetch/sequencer"
)

// FetchFunc performs one upstream call. ctx is cancelled when the attempt is
// superseded, abandoned by the watchdog, or the controller closes; pass it to
// the transport so idle connections are torn down.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// NoRetry disables retries when set as Policy.MaxRetries.
const NoRetry = -1

// Policy is the per-resource configuration surface.
// Zero fields take the defaults below.
type Policy struct {
	MaxRetries        int           // 0 => 3; NoRetry => none
	InitialDelay      time.Duration // 0 => 1s
	MaxDelay          time.Duration // 0 => 5s
	BackoffMultiplier float64       // 0 => 2
	Jitter            float64       // 0 => none
	WatchdogTimeout   time.Duration // 0 => 8s
	CacheTTL          time.Duration // 0 => 10m; used when the controller builds its cache store
}

var DefaultPolicy = Policy{
	MaxRetries:        3,
	InitialDelay:      time.Second,
	MaxDelay:          5 * time.Second,
	BackoffMultiplier: 2,
	WatchdogTimeout:   8 * time.Second,
	CacheTTL:          10 * time.Minute,
}

func (p Policy) withDefaults() Policy {
	p.MaxRetries = util.Coalesce(p.MaxRetries, DefaultPolicy.MaxRetries)
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	p.InitialDelay = util.Coalesce(p.InitialDelay, DefaultPolicy.InitialDelay)
	p.MaxDelay = util.Coalesce(p.MaxDelay, DefaultPolicy.MaxDelay)
	p.BackoffMultiplier = util.Coalesce(p.BackoffMultiplier, DefaultPolicy.BackoffMultiplier)
	p.WatchdogTimeout = util.Coalesce(p.WatchdogTimeout, DefaultPolicy.WatchdogTimeout)
	p.CacheTTL = util.Coalesce(p.CacheTTL, DefaultPolicy.CacheTTL)
	return p
}

func (p Policy) backoff() backoff.Config {
	return backoff.Config{
		InitialDelay: p.InitialDelay,
		MaxDelay:     p.MaxDelay,
		Multiplier:   p.BackoffMultiplier,
		Jitter:       p.Jitter,
	}
}

// Options configure a Controller. Key and Fetch are required.
type Options[T any] struct {
	Key   string
	Fetch FetchFunc[T]

	Policy Policy

	// Sequencer shared between controllers; nil => a private one, closed with
	// the controller. Registry passes its own.
	Sequencer *sequencer.Sequencer

	// Cache used for stale fallback. When nil and CacheProvider is set, a
	// store is built on CacheProvider with Policy.CacheTTL. Both nil => no
	// fallback.
	Cache          *cachestore.Store[T]
	CacheProvider  pr.Provider
	CacheNamespace string         // "" => "resfetch"
	Codec          codec.Codec[T] // nil => codec.JSON[T]

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

func (o Options[T]) validate() error {
	if o.Key == "" {
		return &OptionsError{Field: "Key", Msg: "is required"}
	}
	if o.Fetch == nil {
		return &OptionsError{Key: o.Key, Field: "Fetch", Msg: "is required"}
	}
	p := o.Policy
	if p.Jitter < 0 || p.Jitter > 1 {
		return &OptionsError{Key: o.Key, Field: "Policy.Jitter", Msg: "must be within [0,1]"}
	}
	if p.BackoffMultiplier != 0 && p.BackoffMultiplier < 1 {
		return &OptionsError{Key: o.Key, Field: "Policy.BackoffMultiplier", Msg: "must be >= 1"}
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 || p.WatchdogTimeout < 0 || p.CacheTTL < 0 {
		return &OptionsError{Key: o.Key, Field: "Policy", Msg: "durations must not be negative"}
	}
	if p.InitialDelay > 0 && p.MaxDelay > 0 && p.MaxDelay < p.InitialDelay {
		return &OptionsError{Key: o.Key, Field: "Policy.MaxDelay", Msg: "must not be below InitialDelay"}
	}
	return nil
}
