// Package app wires shopctl: config, logging, storage provider, API client,
// product cache and session.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/shopcache"
	"github.com/unkn0wn-root/shopcache/client"
	"github.com/unkn0wn-root/shopcache/codec"
	"github.com/unkn0wn-root/shopcache/config"
	asynchook "github.com/unkn0wn-root/shopcache/hooks/async"
	pr "github.com/unkn0wn-root/shopcache/provider"
	"github.com/unkn0wn-root/shopcache/provider/bigcache"
	"github.com/unkn0wn-root/shopcache/provider/memory"
	"github.com/unkn0wn-root/shopcache/provider/redis"
	"github.com/unkn0wn-root/shopcache/provider/ristretto"
	"github.com/unkn0wn-root/shopcache/session"
	"github.com/unkn0wn-root/shopcache/sloghooks"
)

type App struct {
	Config  *config.Config
	Log     shopcache.Logger
	Client  *client.Client
	Cache   *shopcache.Cache
	Session *session.Manager

	closers []func(ctx context.Context) error
}

// Build assembles the app from cfg. Logs go to logOut (stderr when nil).
// Nothing is fetched; the session starts in StatusChecking.
func Build(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	if logOut == nil {
		logOut = os.Stderr
	}
	a := &App{Config: cfg}
	log, flush := newLogger(cfg.LogFormat, cfg.LogLevel, logOut)
	a.Log = log
	a.closers = append(a.closers, func(context.Context) error { return flush() })
	log.Debug("configuration", shopcache.Fields{"config": cfg.String()})

	var rdb goredis.UniversalClient
	if cfg.UsesRedis() {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	}

	prov, err := newProvider(ctx, cfg, rdb)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init provider %s: %w", cfg.Provider, err)
	}
	pages, products, err := newCodecs(cfg)
	if err != nil {
		_ = prov.Close(ctx)
		a.Close(ctx)
		return nil, err
	}

	// the client reads the token from the session built below
	var mgr *session.Manager
	api, err := client.New(cfg.APIURL,
		client.WithLogger(log),
		client.WithTokenSource(func() string {
			if mgr == nil {
				return ""
			}
			return mgr.Token()
		}),
	)
	if err != nil {
		_ = prov.Close(ctx)
		a.Close(ctx)
		return nil, err
	}
	a.Client = api

	var hooks shopcache.Hooks
	if cfg.LogLevel == "debug" {
		raw := sloghooks.New(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug})), sloghooks.Options{})
		ah := asynchook.New(raw, 1, 1000)
		a.closers = append(a.closers, func(context.Context) error { ah.Close(); return nil })
		hooks = ah
	}

	cache, err := shopcache.New(shopcache.Options{
		Namespace:         cfg.Namespace,
		Backend:           api,
		Provider:          prov,
		PageCodec:         pages,
		ProductCodec:      products,
		Logger:            log,
		Hooks:             hooks,
		UploadConcurrency: cfg.UploadConcurrency,
		CoalesceMisses:    cfg.CoalesceMisses,
		TTL:               cacheTTL(cfg),
	})
	if err != nil {
		_ = prov.Close(ctx)
		a.Close(ctx)
		return nil, err
	}
	a.Cache = cache
	// cache first, so it is closed before the redis client
	a.closers = append([]func(context.Context) error{cache.Close}, a.closers...)

	mgr, err = session.New(ctx, session.Options{
		Authenticator: api,
		Store:         newTokenStore(cfg, rdb),
		Logger:        log,
		OnLogout:      cache.Clear,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Session = mgr

	log.Debug("app built", shopcache.Fields{"provider": cfg.Provider, "codec": cfg.Codec, "token_store": cfg.TokenStore})
	return a, nil
}

// Close releases everything Build opened and returns the joined errors.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, c := range a.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newProvider(ctx context.Context, cfg *config.Config, rdb goredis.UniversalClient) (pr.Provider, error) {
	switch cfg.Provider {
	case "bigcache":
		return bigcache.New(ctx, bigcache.Config{HardMaxCacheSizeMB: cfg.CacheMaxMB})
	case "ristretto":
		maxCost := int64(cfg.CacheMaxMB) << 20
		return ristretto.New(ristretto.Config{
			NumCounters: 100_000,
			MaxCost:     maxCost,
			BufferItems: 64,
		})
	case "redis":
		return redis.New(redis.Config{Client: rdb, Prefix: cfg.RedisPrefix})
	default:
		return memory.New(), nil
	}
}

// cacheTTL expires entries in a shared redis, which outlives every process
// that wrote to it. Local providers die with the process.
func cacheTTL(cfg *config.Config) time.Duration {
	if cfg.Provider == "redis" {
		return cfg.CacheTTL
	}
	return 0
}

// newCodecs bounds decode size when entries come from a shared redis.
func newCodecs(cfg *config.Config) (codec.Codec[shopcache.Page], codec.Codec[shopcache.Product], error) {
	pages, err := codec.ByName[shopcache.Page](cfg.Codec)
	if err != nil {
		return nil, nil, err
	}
	products, err := codec.ByName[shopcache.Product](cfg.Codec)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Provider == "redis" && cfg.MaxEntryBytes > 0 {
		return codec.LimitCodec[shopcache.Page]{Inner: pages, MaxDecode: cfg.MaxEntryBytes},
			codec.LimitCodec[shopcache.Product]{Inner: products, MaxDecode: cfg.MaxEntryBytes},
			nil
	}
	return pages, products, nil
}

func newTokenStore(cfg *config.Config, rdb goredis.UniversalClient) session.TokenStore {
	switch cfg.TokenStore {
	case "redis":
		return &session.RedisStore{Client: rdb, Key: cfg.TokenKey}
	case "file":
		return &session.FileStore{Path: cfg.TokenFile}
	default:
		return &session.MemoryStore{}
	}
}
