package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/resfetch"
	"github.com/unkn0wn-root/resfetch/classify"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SupersededEvery uint64
	RetryEvery      uint64
	// Optional key redactor. Keys are logged verbatim when nil; set HashKeys
	// to log a SHA-256 prefix instead (keys carrying customer filters).
	Redact   func(string) string
	HashKeys bool
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	supersededCtr atomic.Uint64
	retryCtr      atomic.Uint64
}

var _ resfetch.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	if !h.opts.HashKeys {
		return k
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Superseded(key string, gen uint64) {
	if h.l == nil || !sample(h.opts.SupersededEvery, &h.supersededCtr) {
		return
	}
	h.l.Debug("resfetch.superseded",
		"key", h.redact(key),
		"gen", gen)
}

func (h *Hooks) RetryScheduled(key string, attempt int, delay time.Duration, kind classify.Kind) {
	if h.l == nil || !sample(h.opts.RetryEvery, &h.retryCtr) {
		return
	}
	h.l.Info("resfetch.retry_scheduled",
		"key", h.redact(key),
		"attempt", attempt,
		"delay", delay,
		"kind", kind.String())
}

func (h *Hooks) WatchdogFired(key string, attempt int) {
	if h.l == nil {
		return
	}
	h.l.Warn("resfetch.watchdog_fired",
		"key", h.redact(key),
		"attempt", attempt)
}

func (h *Hooks) FetchSucceeded(key string, attempts int, elapsed time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Debug("resfetch.fetch_succeeded",
		"key", h.redact(key),
		"attempts", attempts,
		"elapsed", elapsed)
}

func (h *Hooks) FetchFailed(key string, kind classify.Kind, stale bool) {
	if h.l == nil {
		return
	}
	if stale {
		h.l.Warn("resfetch.fetch_failed_stale",
			"key", h.redact(key),
			"kind", kind.String())
		return
	}
	h.l.Error("resfetch.fetch_failed",
		"key", h.redact(key),
		"kind", kind.String())
}

func (h *Hooks) CacheWriteFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("resfetch.cache_write_failed",
		"key", h.redact(key),
		"err", err)
}
