package shopcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/shopcache/codec"
	"github.com/unkn0wn-root/shopcache/internal/util"
	"github.com/unkn0wn-root/shopcache/internal/wire"
	pr "github.com/unkn0wn-root/shopcache/provider"
	"github.com/unkn0wn-root/shopcache/provider/memory"
)

// Cache is the read-through product cache. Build one per session with New,
// share it by reference and Clear it on logout. Safe for concurrent use.
type Cache struct {
	ns       string
	backend  Backend
	provider pr.Provider
	lister   pr.Lister // nil unless the provider can enumerate keys
	pages    codec.Codec[Page]
	products codec.Codec[Product]
	log      Logger
	hooks    Hooks
	ttl      time.Duration

	uploadLimit int
	coalesce    bool
	flight      singleflight.Group

	// what this cache has written; the sweep and Clear walk it, plus
	// whatever the lister reports. mu is also held for a whole sweep.
	mu       sync.Mutex
	pageKeys map[string]struct{}            // BuildKey keys
	lookups  map[string]map[string]struct{} // product id -> id/slug lookup keys
	// storage keys that may hold an outdated value because a provider call
	// failed while patching or deleting them; reads skip them until refetched.
	suspect map[string]struct{}
}

// Stats counts tracked entries.
type Stats struct {
	Pages    int
	Products int
}

func newCache(opts Options) (*Cache, error) {
	if opts.Backend == nil {
		return nil, ErrNoBackend
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("shopcache: namespace is required")
	}
	if opts.TTL < 0 {
		return nil, fmt.Errorf("shopcache: ttl must be >= 0, got %s", opts.TTL)
	}
	if opts.UploadConcurrency < 0 {
		return nil, fmt.Errorf("shopcache: upload concurrency must be >= 0, got %d", opts.UploadConcurrency)
	}

	c := &Cache{
		ns:          opts.Namespace,
		backend:     opts.Backend,
		provider:    opts.Provider,
		ttl:         opts.TTL,
		uploadLimit: opts.UploadConcurrency,
		coalesce:    opts.CoalesceMisses,
		pageKeys:    make(map[string]struct{}),
		lookups:     make(map[string]map[string]struct{}),
		suspect:     make(map[string]struct{}),
	}

	// defaults
	if c.provider == nil {
		c.provider = memory.New()
	}
	c.lister, _ = c.provider.(pr.Lister)
	c.pages = coalesce[codec.Codec[Page]](opts.PageCodec, codec.JSON[Page]{})
	c.products = coalesce[codec.Codec[Product]](opts.ProductCodec, codec.JSON[Product]{})
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	return c, nil
}

// GetPage returns the listing page for p, calling the backend only when the
// page is not cached. A failed fetch stores nothing, so the next call retries.
func (c *Cache) GetPage(ctx context.Context, p Params) (Page, error) {
	p = p.Normalize()
	key := BuildKey(p)
	sk := c.pageKey(key)

	if pg, ok := c.readPage(ctx, sk); ok {
		c.hooks.CacheHit(KindPage, key)
		return pg, nil
	}
	c.hooks.CacheMiss(KindPage, key)

	fetch := func() (Page, error) {
		pg, err := c.backend.ListProducts(ctx, p)
		if err != nil {
			c.hooks.FetchFailed(KindPage, key, err)
			c.log.Debug("page fetch failed", Fields{"key": key, "err": err})
			return Page{}, err
		}
		pg.Params = p
		c.storePage(ctx, key, pg)
		return pg, nil
	}
	if !c.coalesce {
		return fetch()
	}
	v, err, _ := c.flight.Do(sk, func() (any, error) { return fetch() })
	if err != nil {
		return Page{}, err
	}
	return v.(Page), nil
}

// GetProduct returns a product by id or slug. NewProductID yields
// EmptyProduct without touching the backend or the cache.
func (c *Cache) GetProduct(ctx context.Context, idOrSlug string) (Product, error) {
	if idOrSlug == NewProductID {
		return EmptyProduct(), nil
	}
	if idOrSlug == "" {
		return Product{}, ErrEmptyID
	}
	sk := c.productKey(idOrSlug)

	if p, ok := c.readProduct(ctx, sk); ok {
		c.hooks.CacheHit(KindProduct, idOrSlug)
		return p, nil
	}
	c.hooks.CacheMiss(KindProduct, idOrSlug)

	fetch := func() (Product, error) {
		p, err := c.backend.GetProduct(ctx, idOrSlug)
		if err != nil {
			c.hooks.FetchFailed(KindProduct, idOrSlug, err)
			c.log.Debug("product fetch failed", Fields{"key": idOrSlug, "err": err})
			return Product{}, err
		}
		c.storeProduct(ctx, idOrSlug, p)
		return p, nil
	}
	if !c.coalesce {
		return fetch()
	}
	v, err, _ := c.flight.Do(sk, func() (any, error) { return fetch() })
	if err != nil {
		return Product{}, err
	}
	return v.(Product), nil
}

// Clear drops every entry this cache wrote, and with a listing provider
// every entry of the namespace. Called when the session ends. Keys whose
// delete fails stay unreadable until refetched.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make(map[string]struct{}, len(c.pageKeys)+len(c.suspect))
	for key := range c.pageKeys {
		keys[c.pageKey(key)] = struct{}{}
	}
	for _, lks := range c.lookups {
		for lk := range lks {
			keys[c.productKey(lk)] = struct{}{}
		}
	}
	for sk := range c.suspect {
		keys[sk] = struct{}{}
	}
	for _, prefix := range []string{c.pageKey(""), c.productKey("")} {
		for _, sk := range c.listKeys(ctx, prefix) {
			keys[sk] = struct{}{}
		}
	}

	c.pageKeys = make(map[string]struct{})
	c.lookups = make(map[string]map[string]struct{})
	c.suspect = make(map[string]struct{})
	failed := 0
	for sk := range keys {
		if !c.evict(ctx, sk) {
			failed++
		}
	}
	c.log.Info("cache cleared", Fields{"ns": c.ns, "entries": len(keys), "failed": failed})
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Pages: len(c.pageKeys)}
	for _, keys := range c.lookups {
		s.Products += len(keys)
	}
	return s
}

func (c *Cache) Close(ctx context.Context) error {
	if c.provider != nil {
		return c.provider.Close(ctx)
	}
	return nil
}

func (c *Cache) storePage(ctx context.Context, key string, pg Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sk := c.pageKey(key)
	if store(ctx, c, c.pages, wire.KindPage, sk, pg) {
		c.pageKeys[key] = struct{}{}
		delete(c.suspect, sk)
	}
}

func (c *Cache) storeProduct(ctx context.Context, lookup string, p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sk := c.productKey(lookup)
	if store(ctx, c, c.products, wire.KindProduct, sk, p) {
		c.remember(p.ID, lookup)
		delete(c.suspect, sk)
	}
}

// remember records lookup as a key holding product id. Caller holds mu.
func (c *Cache) remember(id, lookup string) {
	keys, ok := c.lookups[id]
	if !ok {
		keys = make(map[string]struct{}, 2)
		c.lookups[id] = keys
	}
	keys[lookup] = struct{}{}
}

// evict deletes sk from the provider. A failed delete marks sk suspect so
// it is not served. Caller holds mu.
func (c *Cache) evict(ctx context.Context, sk string) bool {
	if err := c.provider.Del(ctx, sk); err != nil {
		c.suspect[sk] = struct{}{}
		c.log.Warn("provider del failed", Fields{"key": sk, "err": err})
		return false
	}
	delete(c.suspect, sk)
	return true
}

// listKeys returns the provider's keys under prefix, or nil when the
// provider cannot list or the listing fails.
func (c *Cache) listKeys(ctx context.Context, prefix string) []string {
	if c.lister == nil {
		return nil
	}
	keys, err := c.lister.Keys(ctx, prefix)
	if err != nil {
		c.log.Warn("provider list failed", Fields{"prefix": prefix, "err": err})
		return nil
	}
	return keys
}

func (c *Cache) isSuspect(sk string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.suspect[sk]
	return ok
}

// readPage is load for the read path: suspect keys and provider errors are misses.
func (c *Cache) readPage(ctx context.Context, sk string) (Page, bool) {
	if c.isSuspect(sk) {
		return Page{}, false
	}
	pg, ok, err := load(ctx, c, c.pages, wire.KindPage, sk)
	if err != nil {
		c.log.Warn("provider get failed", Fields{"key": sk, "err": err})
		return Page{}, false
	}
	return pg, ok
}

func (c *Cache) readProduct(ctx context.Context, sk string) (Product, bool) {
	if c.isSuspect(sk) {
		return Product{}, false
	}
	p, ok, err := load(ctx, c, c.products, wire.KindProduct, sk)
	if err != nil {
		c.log.Warn("provider get failed", Fields{"key": sk, "err": err})
		return Product{}, false
	}
	return p, ok
}

func (c *Cache) pageKey(key string) string {
	// isolate by namespace
	return util.StorageKey(util.PagePrefix, c.ns, key)
}

func (c *Cache) productKey(lookup string) string {
	return util.StorageKey(util.ProductPrefix, c.ns, lookup)
}

// load reads and decodes one entry. A provider error is returned as is and
// says nothing about what is stored; corrupt or undecodable entries are
// deleted and reported as misses.
func load[V any](ctx context.Context, c *Cache, cd codec.Codec[V], kind byte, storageKey string) (V, bool, error) {
	var zero V
	raw, ok, err := c.provider.Get(ctx, storageKey)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	payload, err := wire.Decode(kind, raw)
	if err != nil {
		_ = c.provider.Del(ctx, storageKey) // self-heal corrupt
		c.hooks.SelfHeal(storageKey, "corrupt")
		return zero, false, nil
	}
	v, err := cd.Decode(payload)
	if err != nil {
		_ = c.provider.Del(ctx, storageKey) // self-heal
		c.hooks.SelfHeal(storageKey, "value_decode")
		return zero, false, nil
	}
	return v, true, nil
}

// store encodes and writes one entry with the cache TTL. It reports whether the
// provider accepted the write; failures are logged, never returned.
func store[V any](ctx context.Context, c *Cache, cd codec.Codec[V], kind byte, storageKey string, v V) bool {
	payload, err := cd.Encode(v)
	if err != nil {
		c.log.Error("encode failed", Fields{"key": storageKey, "err": err})
		return false
	}
	b := wire.Encode(kind, payload)
	ok, err := c.provider.Set(ctx, storageKey, b, int64(len(b)), c.ttl)
	if err != nil {
		c.log.Warn("provider set failed", Fields{"key": storageKey, "err": err})
		return false
	}
	if !ok {
		c.hooks.ProviderSetRejected(storageKey)
		c.log.Debug("set rejected by provider (pressure)", Fields{"key": storageKey})
		return false
	}
	return true
}
