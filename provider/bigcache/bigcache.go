// Package bigcache keeps cache entries in BigCache, sized by default for a
// storefront: a handful of large entries rather than millions of small ones.
//
// BigCache has one LifeWindow for every key. Per-entry freshness is still
// enforced by cachestore from the stored timestamp.
package bigcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	bc "github.com/allegro/bigcache/v3"

	rlog "github.com/unkn0wn-root/resfetch/log"
	pr "github.com/unkn0wn-root/resfetch/provider"
)

const (
	defaultShards      = 16
	defaultEntries     = 256
	defaultEntrySize   = 16 << 10
	defaultCleanWindow = time.Minute
	defaultLifeWindow  = 10 * time.Minute
)

type Config struct {
	LifeWindow         time.Duration // 0 => 10m
	Shards             int           // power of two; 0 => 16
	MaxEntriesInWindow int           // 0 => 256
	MaxEntrySize       int           // bytes; 0 => 16KiB
	HardMaxCacheSizeMB int           // 0 => unbounded
	Logger             rlog.Logger   // receives BigCache's own diagnostics
}

type Provider struct {
	c *bc.BigCache
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = defaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	conf.Shards = orDefault(cfg.Shards, defaultShards)
	conf.MaxEntriesInWindow = orDefault(cfg.MaxEntriesInWindow, defaultEntries)
	conf.MaxEntrySize = orDefault(cfg.MaxEntrySize, defaultEntrySize)
	conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	conf.CleanWindow = min(defaultCleanWindow, life)
	conf.Verbose = false
	if cfg.Logger != nil {
		conf.Logger = printfLogger{cfg.Logger}
	}

	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	switch {
	case errors.Is(err, bc.ErrEntryNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

// Set ignores cost and ttl; entries live for LifeWindow.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	if err := p.c.Set(key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Len is the number of entries held, expired or not.
func (p *Provider) Len() int { return p.c.Len() }

func (p *Provider) Close(_ context.Context) error { return p.c.Close() }

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type printfLogger struct{ l rlog.Logger }

func (p printfLogger) Printf(format string, v ...any) {
	p.l.Warn("bigcache: "+fmt.Sprintf(format, v...), nil)
}
