// Package backoff computes the delay between retries of one logical fetch.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config defines the exponential schedule.
//
// Jitter is a fraction in [0,1]. Zero keeps NextDelay deterministic and
// monotone; a positive value scales each delay down by a random factor in
// [1-Jitter, 1] so that clients sharing an outage do not retry in lockstep.
type Config struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// DefaultConfig matches the schedule used by the storefront screens.
var DefaultConfig = Config{
	InitialDelay: time.Second,
	MaxDelay:     5 * time.Second,
	Multiplier:   2,
}

// NextDelay returns min(InitialDelay * Multiplier^attempt, MaxDelay).
// attempt is 0-indexed; negative values are treated as 0.
func NextDelay(attempt int, cfg Config) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	cfg = cfg.normalize()

	d := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	delay := time.Duration(d)
	if cfg.Jitter > 0 {
		delay = applyJitter(delay, cfg.Jitter)
	}
	return delay
}

func (c Config) normalize() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultConfig.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultConfig.MaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = DefaultConfig.Multiplier
	}
	c.Jitter = math.Min(math.Max(c.Jitter, 0), 1)
	return c
}

func applyJitter(d time.Duration, jitter float64) time.Duration {
	factor := 1 - jitter*rand.Float64()
	return time.Duration(float64(d) * factor)
}
