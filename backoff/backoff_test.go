package backoff

import (
	"testing"
	"time"
)

func TestNextDelaySchedule(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}
	for attempt, w := range want {
		if got := NextDelay(attempt, cfg); got != w {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, w)
		}
	}
}

func TestNextDelayMonotoneAndCapped(t *testing.T) {
	configs := []Config{
		DefaultConfig,
		{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2},
		{InitialDelay: 250 * time.Millisecond, MaxDelay: 10 * time.Second, Multiplier: 1.5},
		{InitialDelay: time.Second, MaxDelay: 8 * time.Second, Multiplier: 3},
	}
	for _, cfg := range configs {
		prev := time.Duration(0)
		for attempt := 0; attempt < 64; attempt++ {
			d := NextDelay(attempt, cfg)
			if d < prev {
				t.Fatalf("cfg %+v: delay decreased at attempt %d: %v < %v", cfg, attempt, d, prev)
			}
			if d > cfg.MaxDelay {
				t.Fatalf("cfg %+v: delay %v exceeds max at attempt %d", cfg, d, attempt)
			}
			prev = d
		}
	}
}

func TestNextDelayHugeAttemptClamps(t *testing.T) {
	if got := NextDelay(10_000, DefaultConfig); got != DefaultConfig.MaxDelay {
		t.Fatalf("got %v want %v", got, DefaultConfig.MaxDelay)
	}
}

func TestNextDelayCapBelowInitialDelay(t *testing.T) {
	cfg := Config{InitialDelay: 2 * time.Second, MaxDelay: time.Second, Multiplier: 2}
	for attempt := 0; attempt < 4; attempt++ {
		if got := NextDelay(attempt, cfg); got != time.Second {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, time.Second)
		}
	}
}

func TestNextDelayZeroConfigUsesDefaults(t *testing.T) {
	if got := NextDelay(-3, Config{}); got != DefaultConfig.InitialDelay {
		t.Fatalf("got %v want %v", got, DefaultConfig.InitialDelay)
	}
}

func TestNextDelayJitterStaysInRange(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 4 * time.Second, Multiplier: 2, Jitter: 0.5}
	for i := 0; i < 200; i++ {
		d := NextDelay(1, cfg)
		if d < time.Second || d > 2*time.Second {
			t.Fatalf("jittered delay %v outside [1s,2s]", d)
		}
	}
}
