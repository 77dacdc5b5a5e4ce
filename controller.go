package resfetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/resfetch/backoff"
	"github.com/unkn0wn-root/resfetch/cachestore"
	"github.com/unkn0wn-root/resfetch/classify"
	"github.com/unkn0wn-root/resfetch/internal/util"
	rlog "github.com/unkn0wn-root/resfetch/log"
	"github.com/unkn0wn-root/resfetch/sequencer"
)

type evKind uint8

const (
	evResult evKind = iota
	evWatchdog
	evRetry
)

type event[T any] struct {
	kind  evKind
	gen   uint64
	call  uint64
	value T
	err   error
}

// Controller drives one resource. All transitions run on a single event-loop
// goroutine; results, watchdog and retry timers reach it as events, so the
// generation check and the state write it guards happen in the same turn.
//
// Run one Controller per resource key per Sequencer. A second controller
// beginning the same key supersedes the first, which then never settles.
type Controller[T any] struct {
	key    string
	fetch  FetchFunc[T]
	policy Policy
	seq    *sequencer.Sequencer
	ownSeq bool
	cache  *cachestore.Store[T]
	log    Logger
	hooks  Hooks

	ctx       context.Context // lifetime; cancelled on Close
	cancel    context.CancelFunc
	triggers  chan struct{}
	events    chan event[T]
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	state     State[T]
	subs      map[uint64]func(State[T])
	nextSub   uint64
	requested uint64 // Trigger calls
	served    uint64 // Trigger calls the loop has turned into a generation

	// owned by the event loop
	gen        uint64
	genCtx     context.Context
	calls      uint64
	pending    uint64 // call awaiting completion; 0 when none
	callCancel context.CancelCauseFunc
	attempt    int
	started    time.Time
	watchdog   *time.Timer
	retryTimer *time.Timer
}

func New[T any](opts Options[T]) (*Controller[T], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	c := &Controller[T]{
		key:      opts.Key,
		fetch:    opts.Fetch,
		policy:   opts.Policy.withDefaults(),
		seq:      opts.Sequencer,
		cache:    opts.Cache,
		log:      rlog.OrNop(opts.Logger),
		hooks:    opts.Hooks,
		triggers: make(chan struct{}, 1),
		events:   make(chan event[T], 16),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		subs:     make(map[uint64]func(State[T])),
	}
	if c.hooks == nil {
		c.hooks = NopHooks{}
	}
	if c.cache == nil && opts.CacheProvider != nil {
		store, err := cachestore.New[T](cachestore.Options[T]{
			Namespace: util.Coalesce(opts.CacheNamespace, "resfetch"),
			Provider:  opts.CacheProvider,
			Codec:     opts.Codec,
			TTL:       c.policy.CacheTTL,
			Logger:    c.log,
		})
		if err != nil {
			return nil, fmt.Errorf("resfetch: %q: cache: %w", opts.Key, err)
		}
		c.cache = store
	}
	if c.seq == nil {
		c.seq = sequencer.New(sequencer.Options{Logger: c.log})
		c.ownSeq = true
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.loop()
	return c, nil
}

func (c *Controller[T]) Key() string { return c.key }

// State returns the latest published state.
func (c *Controller[T]) State() State[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller[T]) Status() Status { return c.State().status(c.key) }

// Snapshot returns State() as any, for callers holding a Resource.
func (c *Controller[T]) Snapshot() any { return c.State() }

// RefreshStatus is Refresh for callers holding a Resource.
func (c *Controller[T]) RefreshStatus(ctx context.Context) (Status, error) {
	s, err := c.Refresh(ctx)
	return s.status(c.key), err
}

// Subscribe registers fn for every published state. fn runs on the event
// loop: it must not block. It may call Trigger. It must not call Close, Await
// or Refresh: those wait for the loop that is running fn, and block until
// their ctx expires. Close the controller from another goroutine instead.
func (c *Controller[T]) Subscribe(fn func(State[T])) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Trigger starts a new logical fetch, superseding any fetch in flight. It never
// blocks; triggers arriving before the loop picks up the previous one collapse
// into a single fetch.
func (c *Controller[T]) Trigger() {
	c.mu.Lock()
	c.requested++
	select {
	case c.triggers <- struct{}{}:
	default:
	}
	c.mu.Unlock()
}

// Await blocks until the fetch in flight settles and returns the settled
// state. A Trigger the loop has not picked up yet counts as in flight. With
// nothing in flight it returns the current state at once.
func (c *Controller[T]) Await(ctx context.Context) (State[T], error) {
	return c.wait(ctx, func(s State[T]) bool { return !s.Loading && !c.triggerQueued() }, c.idleNow)
}

func (c *Controller[T]) triggerQueued() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requested != c.served
}

// idleNow reads the state and the trigger counters under one lock.
func (c *Controller[T]) idleNow() (State[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, !c.state.Loading && c.requested == c.served
}

// Refresh triggers a fetch and waits for a fetch begun at or after the call to
// settle.
func (c *Controller[T]) Refresh(ctx context.Context) (State[T], error) {
	after := c.State().Generation
	return c.wait(ctx, func(s State[T]) bool {
		return s.Generation > after && s.Phase.Settled()
	}, nil, c.Trigger)
}

// wait returns the first published state done accepts. now, when set, may
// answer before anything is published.
func (c *Controller[T]) wait(ctx context.Context, done func(State[T]) bool, now func() (State[T], bool), start ...func()) (State[T], error) {
	ch := make(chan State[T], 1)
	unsub := c.Subscribe(func(s State[T]) {
		if done(s) {
			select {
			case ch <- s:
			default:
			}
		}
	})
	defer unsub()

	if now != nil {
		if s, ok := now(); ok {
			return s, nil
		}
	}
	for _, fn := range start {
		fn()
	}

	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	case <-c.done:
		return c.State(), ErrClosed
	}
}

// Close stops the controller and cancels any fetch in flight.
func (c *Controller[T]) Close(ctx context.Context) error {
	c.closeOnce.Do(func() { close(c.stop) })
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if c.ownSeq {
		return c.seq.Close(ctx)
	}
	return nil
}

func (c *Controller[T]) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			c.teardown()
			return
		case <-c.triggers:
			c.onTrigger()
		case ev := <-c.events:
			switch ev.kind {
			case evResult:
				c.onResult(ev)
			case evWatchdog:
				c.onWatchdog(ev)
			case evRetry:
				c.onRetry(ev)
			}
		}
	}
}

func (c *Controller[T]) send(ev event[T]) {
	select {
	case c.events <- ev:
	case <-c.stop:
	}
}

func (c *Controller[T]) onTrigger() {
	c.stopTimers()
	// Begin cancels the previous generation, and with it the call in flight
	gen, gctx := c.seq.Begin(c.ctx, c.key)
	c.abandonCall(ErrSuperseded)
	c.gen, c.genCtx = gen, gctx
	c.attempt = 0
	c.started = time.Now()

	c.publish(func(s *State[T]) {
		// triggers queued since this one collapse into this generation
		c.served = c.requested
		select {
		case <-c.triggers:
		default:
		}
		s.Loading = true
		s.Error = ""
		s.IsRetrying = false
		s.RetryAttempt = 0
		s.Phase = Fetching
		s.Generation = gen
	})
	c.log.Debug("fetch started", Fields{"key": c.key, "gen": gen})
	c.startAttempt()
}

func (c *Controller[T]) startAttempt() {
	c.calls++
	call, gen := c.calls, c.gen
	actx, cancel := context.WithCancelCause(c.genCtx)
	c.pending, c.callCancel = call, cancel

	c.watchdog = time.AfterFunc(c.policy.WatchdogTimeout, func() {
		c.send(event[T]{kind: evWatchdog, gen: gen, call: call})
	})
	go func() {
		v, err := c.invoke(actx)
		c.send(event[T]{kind: evResult, gen: gen, call: call, value: v, err: err})
	}()
}

func (c *Controller[T]) invoke(ctx context.Context) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resfetch: fetch %q panicked: %v", c.key, r)
		}
	}()
	return c.fetch(ctx)
}

// current reports whether a completion for (gen, call) may still act.
func (c *Controller[T]) current(gen, call uint64) bool {
	return call != 0 && call == c.pending && c.seq.IsCurrent(c.key, gen)
}

func (c *Controller[T]) onResult(ev event[T]) {
	if !c.current(ev.gen, ev.call) {
		if ev.gen == c.gen && c.seq.IsCurrent(c.key, ev.gen) {
			// abandoned by the watchdog; its generation moved on without it
			c.log.Debug("dropping late completion", Fields{"key": c.key, "gen": ev.gen, "call": ev.call})
			return
		}
		c.hooks.Superseded(c.key, ev.gen)
		c.log.Debug("dropping superseded completion", Fields{"key": c.key, "gen": ev.gen, "current": c.gen})
		return
	}
	c.endAttempt()
	if ev.err == nil {
		c.succeed(ev.value)
		return
	}
	c.fail(classify.Classify(ev.err))
}

func (c *Controller[T]) onWatchdog(ev event[T]) {
	if !c.current(ev.gen, ev.call) {
		return
	}
	c.hooks.WatchdogFired(c.key, c.attempt)
	c.log.Warn("watchdog fired; abandoning attempt", Fields{
		"key": c.key, "gen": c.gen, "attempt": c.attempt, "timeout": c.policy.WatchdogTimeout,
	})
	// the abandoned call may still complete; pending is cleared so it is dropped
	c.disarm()
	c.abandonCall(ErrWatchdog)
	c.fail(classify.Classify(fmt.Errorf("%w after %s", ErrWatchdog, c.policy.WatchdogTimeout)))
}

func (c *Controller[T]) onRetry(ev event[T]) {
	if c.retryTimer == nil || ev.gen != c.gen || !c.seq.IsCurrent(c.key, ev.gen) {
		return
	}
	c.retryTimer = nil
	c.publish(func(s *State[T]) {
		s.Phase = Fetching
		s.Loading = true
	})
	c.startAttempt()
}

func (c *Controller[T]) succeed(v T) {
	if c.cache != nil {
		if c.seq.IsLatest(c.ctx, c.key, c.gen) {
			if err := c.cache.Put(c.ctx, c.key, v); err != nil {
				c.hooks.CacheWriteFailed(c.key, err)
				c.log.Warn("cache write failed", Fields{"key": c.key, "err": err})
			}
		} else {
			c.log.Debug("skipping cache write; newer generation elsewhere", Fields{"key": c.key, "gen": c.gen})
		}
	}
	c.seq.Release(c.key, c.gen)

	attempts := c.attempt + 1
	c.publish(func(s *State[T]) {
		s.Data = &v
		s.Loading = false
		s.Error = ""
		s.IsRetrying = false
		s.RetryAttempt = 0
		s.Stale = false
		s.Phase = Succeeded
	})
	c.hooks.FetchSucceeded(c.key, attempts, time.Since(c.started))
	c.log.Debug("fetch succeeded", Fields{"key": c.key, "gen": c.gen, "attempts": attempts})
}

func (c *Controller[T]) fail(ce *classify.Error) {
	if ce.Kind == classify.Superseded {
		// the call context was cancelled while its generation is still
		// current, so nobody else will settle it
		ce = &classify.Error{Kind: classify.Domain, Message: ce.Message, Err: ce.Err}
	}

	if ce.Retryable && c.attempt < c.policy.MaxRetries {
		delay := backoff.NextDelay(c.attempt, c.policy.backoff())
		c.attempt++
		attempt, gen := c.attempt, c.gen
		c.publish(func(s *State[T]) {
			s.Loading = true
			s.IsRetrying = true
			s.RetryAttempt = attempt
			s.Phase = RetryWait
		})
		c.hooks.RetryScheduled(c.key, attempt, delay, ce.Kind)
		c.log.Info("retry scheduled", Fields{
			"key": c.key, "gen": gen, "attempt": attempt, "delay": delay, "kind": ce.Kind.String(), "err": ce.Message,
		})
		c.retryTimer = time.AfterFunc(delay, func() {
			c.send(event[T]{kind: evRetry, gen: gen})
		})
		return
	}
	c.settleFailure(ce)
}

func (c *Controller[T]) settleFailure(ce *classify.Error) {
	c.seq.Release(c.key, c.gen)

	if c.cache != nil {
		e, ok, err := c.cache.Get(c.ctx, c.key)
		if err != nil {
			c.log.Warn("cache read failed", Fields{"key": c.key, "err": err})
		}
		if ok {
			v := e.Value
			c.publish(func(s *State[T]) {
				s.Data = &v
				s.Loading = false
				s.Error = StaleNotice(ce.Message)
				s.IsRetrying = false
				s.Stale = true
				s.Phase = Failed
			})
			c.hooks.FetchFailed(c.key, ce.Kind, true)
			c.log.Warn("fetch failed; serving cached data", Fields{
				"key": c.key, "kind": ce.Kind.String(), "err": ce.Message, "age": e.Age(time.Now()),
			})
			return
		}
	}

	c.publish(func(s *State[T]) {
		s.Data = nil
		s.Loading = false
		s.Error = ce.Message
		s.IsRetrying = false
		s.Stale = false
		s.Phase = Failed
	})
	c.hooks.FetchFailed(c.key, ce.Kind, false)
	c.log.Error("fetch failed", Fields{"key": c.key, "kind": ce.Kind.String(), "attempts": c.attempt + 1, "err": ce.Message})
}

func (c *Controller[T]) publish(mut func(*State[T])) {
	c.mu.Lock()
	mut(&c.state)
	c.state.UpdatedAt = time.Now()
	st := c.state
	subs := make([]func(State[T]), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// endAttempt disarms the watchdog and releases the call context.
func (c *Controller[T]) endAttempt() {
	c.disarm()
	c.abandonCall(nil)
}

func (c *Controller[T]) abandonCall(cause error) {
	if c.callCancel != nil {
		c.callCancel(cause)
		c.callCancel = nil
	}
	c.pending = 0
}

func (c *Controller[T]) disarm() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

func (c *Controller[T]) stopTimers() {
	c.disarm()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Controller[T]) teardown() {
	c.stopTimers()
	c.abandonCall(ErrClosed)
	c.cancel()
	if c.gen != 0 {
		c.seq.Release(c.key, c.gen)
	}
}
