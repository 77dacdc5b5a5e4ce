// Package config loads the storefetch YAML configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/resfetch"
	"github.com/unkn0wn-root/resfetch/internal/catalog"
)

type Config struct {
	Upstream  UpstreamConfig   `yaml:"upstream"`
	Cache     CacheConfig      `yaml:"cache"`
	Logging   LoggingConfig    `yaml:"logging"`
	Watch     WatchConfig      `yaml:"watch"`
	Defaults  PolicyConfig     `yaml:"defaults"`
	Resources []ResourceConfig `yaml:"resources"`
}

type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	Provider  string        `yaml:"provider"` // memory | ristretto | bigcache | redis | none
	Namespace string        `yaml:"namespace"`
	Codec     string        `yaml:"codec"` // json | cbor | cbor-det | msgpack
	TTL       time.Duration `yaml:"ttl"`
	MaxCost   int64         `yaml:"max_cost"` // ristretto budget in bytes
	Redis     RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"` // prepended to every cache key
	// SharedGenerations keeps fetch generations in Redis so replicas never
	// let an older refresh overwrite a newer one in the shared cache.
	SharedGenerations bool `yaml:"shared_generations"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json | zap | logrus
}

type WatchConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// PolicyConfig mirrors resfetch.Policy. Zero fields inherit; max_retries: -1
// disables retries.
type PolicyConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Jitter            float64       `yaml:"jitter"`
	WatchdogTimeout   time.Duration `yaml:"watchdog_timeout"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

type ResourceConfig struct {
	Key        string       `yaml:"key"`
	Table      string       `yaml:"table"`
	ActiveOnly bool         `yaml:"active_only"`
	Category   string       `yaml:"category"`
	Brand      string       `yaml:"brand"`
	Limit      int          `yaml:"limit"`
	Policy     PolicyConfig `yaml:"policy"`
}

func (r ResourceConfig) Filter() catalog.Filter {
	return catalog.Filter{
		ActiveOnly: r.ActiveOnly,
		CategoryID: r.Category,
		BrandID:    r.Brand,
		Limit:      r.Limit,
	}
}

// ResolvedKey is Key, or the table plus its filter when Key is empty.
func (r ResourceConfig) ResolvedKey() string {
	if r.Key != "" {
		return r.Key
	}
	return r.Filter().Key(r.Table)
}

// Merge returns p with its zero fields taken from base.
func (p PolicyConfig) Merge(base PolicyConfig) PolicyConfig {
	if p.MaxRetries == 0 {
		p.MaxRetries = base.MaxRetries
	}
	if p.InitialDelay == 0 {
		p.InitialDelay = base.InitialDelay
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = base.MaxDelay
	}
	if p.BackoffMultiplier == 0 {
		p.BackoffMultiplier = base.BackoffMultiplier
	}
	if p.Jitter == 0 {
		p.Jitter = base.Jitter
	}
	if p.WatchdogTimeout == 0 {
		p.WatchdogTimeout = base.WatchdogTimeout
	}
	if p.CacheTTL == 0 {
		p.CacheTTL = base.CacheTTL
	}
	return p
}

func (p PolicyConfig) Policy() resfetch.Policy {
	return resfetch.Policy{
		MaxRetries:        p.MaxRetries,
		InitialDelay:      p.InitialDelay,
		MaxDelay:          p.MaxDelay,
		BackoffMultiplier: p.BackoffMultiplier,
		Jitter:            p.Jitter,
		WatchdogTimeout:   p.WatchdogTimeout,
		CacheTTL:          p.CacheTTL,
	}
}

// ResourcePolicy is the effective policy of r: its own fields, then the
// defaults section, then the cache TTL.
func (c *Config) ResourcePolicy(r ResourceConfig) resfetch.Policy {
	p := r.Policy.Merge(c.Defaults)
	if p.CacheTTL == 0 {
		p.CacheTTL = c.Cache.TTL
	}
	return p.Policy()
}

func (c *Config) setDefaults() {
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 15 * time.Second
	}
	if c.Cache.Provider == "" {
		c.Cache.Provider = "memory"
	}
	if c.Cache.Namespace == "" {
		c.Cache.Namespace = "storefetch"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = resfetch.DefaultPolicy.CacheTTL
	}
	if c.Cache.MaxCost == 0 {
		c.Cache.MaxCost = 64 << 20
	}
	if c.Cache.Redis.Addr == "" {
		c.Cache.Redis.Addr = "localhost:6379"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Watch.Interval == 0 {
		c.Watch.Interval = time.Minute
	}
	if c.Watch.MetricsAddr == "" {
		c.Watch.MetricsAddr = ":9090"
	}
	if len(c.Resources) == 0 {
		c.Resources = []ResourceConfig{
			{Table: "products", ActiveOnly: true},
			{Table: "brands", ActiveOnly: true},
			{Table: "categories"},
		}
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	}
	switch c.Cache.Provider {
	case "memory", "ristretto", "bigcache", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("cache.provider: unknown provider %q", c.Cache.Provider))
	}
	switch c.Logging.Format {
	case "text", "json", "zap", "logrus":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	if c.Cache.Redis.SharedGenerations && c.Cache.Provider != "redis" {
		errs = append(errs, errors.New("cache.redis.shared_generations requires cache.provider: redis"))
	}

	seen := make(map[string]bool, len(c.Resources))
	for i, r := range c.Resources {
		if r.Table == "" {
			errs = append(errs, fmt.Errorf("resources[%d]: table is required", i))
			continue
		}
		key := r.ResolvedKey()
		if seen[key] {
			errs = append(errs, fmt.Errorf("resources[%d]: duplicate key %q", i, key))
		}
		seen[key] = true

		p := c.ResourcePolicy(r)
		if p.Jitter < 0 || p.Jitter > 1 {
			errs = append(errs, fmt.Errorf("resources[%d]: jitter must be within [0,1]", i))
		}
		if p.BackoffMultiplier != 0 && p.BackoffMultiplier < 1 {
			errs = append(errs, fmt.Errorf("resources[%d]: backoff_multiplier must be >= 1", i))
		}
		if p.MaxRetries < resfetch.NoRetry {
			errs = append(errs, fmt.Errorf("resources[%d]: max_retries must be >= -1", i))
		}
		if p.InitialDelay > 0 && p.MaxDelay > 0 && p.MaxDelay < p.InitialDelay {
			errs = append(errs, fmt.Errorf("resources[%d]: max_delay %s is below initial_delay %s", i, p.MaxDelay, p.InitialDelay))
		}
	}
	return errors.Join(errs...)
}
