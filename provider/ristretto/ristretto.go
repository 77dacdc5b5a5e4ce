// Package ristretto keeps cache entries in a Ristretto cache bounded by a
// byte budget. Ristretto may refuse a write under pressure; Set then reports
// ok=false and the resource simply has no fallback until the next success.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/resfetch/provider"
)

const (
	defaultEntries = 1000
	bufferItems    = 64 // recommended by Ristretto
)

type Config struct {
	// MaxCost is the byte budget; cachestore passes payload size as cost.
	MaxCost int64
	// ExpectedEntries sizes the admission counters (10 per entry).
	// 0 => 1000, plenty for one storefront's resources.
	ExpectedEntries int64
	Metrics         bool
}

// Provider writes through Ristretto's buffers, so a Get right after Set may
// miss until they drain. Tests call Wait.
type Provider struct {
	c *rc.Cache
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.MaxCost <= 0 {
		return nil, errors.New("ristretto: MaxCost must be positive")
	}
	entries := cfg.ExpectedEntries
	if entries <= 0 {
		entries = defaultEntries
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: entries * 10,
		MaxCost:     cfg.MaxCost,
		BufferItems: bufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	return p.c.SetWithTTL(key, value, cost, ttl), nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Wait() { p.c.Wait() }

// Metrics is nil unless Config.Metrics was set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}
