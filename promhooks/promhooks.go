// Package promhooks exports controller events as Prometheus metrics.
package promhooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/resfetch"
	"github.com/unkn0wn-root/resfetch/classify"
)

type Hooks struct {
	superseded  *prometheus.CounterVec
	retries     *prometheus.CounterVec
	watchdogs   *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	cacheWrites *prometheus.CounterVec
}

var _ resfetch.Hooks = (*Hooks)(nil)

// New registers the collectors on reg; nil => prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "resfetch"
	}
	f := promauto.With(reg)
	return &Hooks{
		// completions dropped because a newer fetch began
		superseded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "superseded_total",
				Help:      "Fetch completions dropped because their generation was superseded",
			},
			[]string{"resource"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retries scheduled after a retryable failure",
			},
			[]string{"resource", "kind"},
		),
		watchdogs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watchdog_fired_total",
				Help:      "Attempts abandoned by the watchdog",
			},
			[]string{"resource"},
		),
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Logical fetches settled, by outcome",
			},
			[]string{"resource", "outcome"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time from trigger to committed data, retries included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		cacheWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_write_errors_total",
				Help:      "Failed writes of fetched data to the cache store",
			},
			[]string{"resource"},
		),
	}
}

func (h *Hooks) Superseded(key string, _ uint64) {
	h.superseded.WithLabelValues(key).Inc()
}

func (h *Hooks) RetryScheduled(key string, _ int, _ time.Duration, kind classify.Kind) {
	h.retries.WithLabelValues(key, kind.String()).Inc()
}

func (h *Hooks) WatchdogFired(key string, _ int) {
	h.watchdogs.WithLabelValues(key).Inc()
}

func (h *Hooks) FetchSucceeded(key string, _ int, elapsed time.Duration) {
	h.fetches.WithLabelValues(key, "success").Inc()
	h.latency.WithLabelValues(key).Observe(elapsed.Seconds())
}

func (h *Hooks) FetchFailed(key string, kind classify.Kind, stale bool) {
	outcome := "failed_" + kind.String()
	if stale {
		outcome = "stale_" + kind.String()
	}
	h.fetches.WithLabelValues(key, outcome).Inc()
}

func (h *Hooks) CacheWriteFailed(key string, _ error) {
	h.cacheWrites.WithLabelValues(key).Inc()
}
