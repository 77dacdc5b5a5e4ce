package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdslog "log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/resfetch"
	"github.com/unkn0wn-root/resfetch/config"
	"github.com/unkn0wn-root/resfetch/genstore"
	asynchook "github.com/unkn0wn-root/resfetch/hooks/async"
	"github.com/unkn0wn-root/resfetch/internal/catalog"
	rlog "github.com/unkn0wn-root/resfetch/log"
	rlogrus "github.com/unkn0wn-root/resfetch/log/logrus"
	rslog "github.com/unkn0wn-root/resfetch/log/slog"
	rzap "github.com/unkn0wn-root/resfetch/log/zap"
	"github.com/unkn0wn-root/resfetch/promhooks"
	pr "github.com/unkn0wn-root/resfetch/provider"
	"github.com/unkn0wn-root/resfetch/provider/bigcache"
	"github.com/unkn0wn-root/resfetch/provider/memory"
	rredis "github.com/unkn0wn-root/resfetch/provider/redis"
	"github.com/unkn0wn-root/resfetch/provider/ristretto"
	"github.com/unkn0wn-root/resfetch/sequencer"
	"github.com/unkn0wn-root/resfetch/sloghooks"
	"github.com/unkn0wn-root/resfetch/upstream"
)

const sharedGenRetention = 24 * time.Hour

// app is everything a command needs, built from one config.
type app struct {
	cfg     *config.Config
	log     rlog.Logger
	metrics *prometheus.Registry
	cache   pr.Provider // nil when cache.provider is none
	reg     *resfetch.Registry
	closers []func(context.Context) error
}

func loadApp(g *globalFlags, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(g.configPath, g.envFile)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, g.debug, logOut)
}

func newApp(cfg *config.Config, debug bool, logOut io.Writer) (*app, error) {
	a := &app{cfg: cfg, metrics: prometheus.NewRegistry()}

	log, hookLog, syncLog := buildLogger(cfg.Logging, debug, logOut)
	a.log = log
	a.closers = append(a.closers, syncLog)

	async := asynchook.New(sloghooks.New(hookLog, sloghooks.Options{SupersededEvery: 10}), 1, 1024)
	a.closers = append(a.closers, func(context.Context) error { async.Close(); return nil })
	hooks := resfetch.Multi(promhooks.New(a.metrics, "storefetch"), async)

	provider, gens, closeStore, err := buildStore(cfg.Cache)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	a.cache = provider
	a.closers = append(a.closers, closeStore)

	api, err := upstream.New(cfg.Upstream.BaseURL,
		upstream.WithAPIKey(cfg.Upstream.APIKey),
		upstream.WithTimeout(cfg.Upstream.Timeout),
		upstream.WithLogger(log),
	)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}

	// registry closes the sequencer, and the sequencer its gen store
	a.reg = resfetch.NewRegistry(sequencer.New(sequencer.Options{Store: gens, Logger: log}))

	resources := make([]catalog.Resource, 0, len(cfg.Resources))
	for _, r := range cfg.Resources {
		resources = append(resources, catalog.Resource{
			Key:    r.ResolvedKey(),
			Table:  r.Table,
			Filter: r.Filter(),
			Policy: cfg.ResourcePolicy(r),
		})
	}
	err = catalog.Register(a.reg, catalog.NewSource(api), resources, catalog.Setup{
		Provider:  provider,
		Namespace: cfg.Cache.Namespace,
		Codec:     cfg.Cache.Codec,
		Logger:    log,
		Hooks:     hooks,
	})
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

// Close shuts down the registry first, then the stores and log sinks.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.reg != nil {
		errs = append(errs, a.reg.Close(ctx))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func slogLevel(level string, debug bool) stdslog.Level {
	if debug {
		return stdslog.LevelDebug
	}
	switch strings.ToLower(level) {
	case "debug":
		return stdslog.LevelDebug
	case "warn":
		return stdslog.LevelWarn
	case "error":
		return stdslog.LevelError
	default:
		return stdslog.LevelInfo
	}
}

// buildLogger returns the controller logger, an slog logger for the hook sink
// and a flush func.
func buildLogger(cfg config.LoggingConfig, debug bool, w io.Writer) (rlog.Logger, *stdslog.Logger, func(context.Context) error) {
	level := slogLevel(cfg.Level, debug)
	nop := func(context.Context) error { return nil }

	switch cfg.Format {
	case "json":
		l := stdslog.New(stdslog.NewJSONHandler(w, &stdslog.HandlerOptions{Level: level}))
		return rslog.New(l), l, nop

	case "zap":
		zl := zapcore.InfoLevel
		switch level {
		case stdslog.LevelDebug:
			zl = zapcore.DebugLevel
		case stdslog.LevelWarn:
			zl = zapcore.WarnLevel
		case stdslog.LevelError:
			zl = zapcore.ErrorLevel
		}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), zl)
		z := zap.New(core).Named(appName)
		hl := stdslog.New(stdslog.NewJSONHandler(w, &stdslog.HandlerOptions{Level: level}))
		return rzap.New(z), hl, func(context.Context) error {
			_ = z.Sync()
			return nil
		}

	case "logrus":
		l := logrus.New()
		l.SetOutput(w)
		l.SetFormatter(&logrus.JSONFormatter{})
		lv, err := logrus.ParseLevel(level.String())
		if err != nil {
			lv = logrus.InfoLevel
		}
		l.SetLevel(lv)
		hl := stdslog.New(stdslog.NewJSONHandler(w, &stdslog.HandlerOptions{Level: level}))
		return rlogrus.New(l), hl, nop

	default:
		l := stdslog.New(tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.RFC3339}))
		return rslog.New(l), l, nop
	}
}

// buildStore returns the cache provider (nil for "none"), the generation
// store for the sequencer and a closer for whatever they own.
func buildStore(cfg config.CacheConfig) (pr.Provider, genstore.GenStore, func(context.Context) error, error) {
	nop := func(context.Context) error { return nil }
	local := func() genstore.GenStore { return genstore.NewLocalGenStore(time.Hour, sharedGenRetention) }

	switch cfg.Provider {
	case "none":
		return nil, local(), nop, nil

	case "memory":
		return memory.New(), local(), nop, nil

	case "ristretto":
		p, err := ristretto.New(ristretto.Config{MaxCost: cfg.MaxCost})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("ristretto: %w", err)
		}
		return p, local(), p.Close, nil

	case "bigcache":
		p, err := bigcache.New(bigcache.Config{
			LifeWindow:         cfg.TTL,
			HardMaxCacheSizeMB: int(cfg.MaxCost >> 20),
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("bigcache: %w", err)
		}
		return p, local(), p.Close, nil

	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		p, err := rredis.New(rredis.Config{Client: rdb, Prefix: cfg.Redis.Prefix})
		if err != nil {
			_ = rdb.Close()
			return nil, nil, nil, err
		}
		gens := local()
		if cfg.Redis.SharedGenerations {
			gens = genstore.NewRedisGenStore(rdb, cfg.Namespace, sharedGenRetention)
		}
		return p, gens, func(context.Context) error { return rdb.Close() }, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown cache provider %q", cfg.Provider)
}
