package shopcache

import (
	"context"
	"reflect"
	"strings"

	"github.com/unkn0wn-root/shopcache/internal/wire"
)

// Reconcile folds a freshly written product into the cache: the entry under
// p.ID (and every slug it was looked up by) is overwritten, and every cached
// page holding p.ID gets p at the same position. Pages are never removed,
// even when p no longer matches their gender filter. Idempotent.
//
// With a listing provider the sweep also covers entries other processes
// wrote. An entry that cannot be read or rewritten is deleted; if the delete
// fails too it is never served until refetched.
func (c *Cache) Reconcile(ctx context.Context, p Product) {
	if p.ID == "" || p.ID == NewProductID {
		c.log.Warn("reconcile skipped: product without id", Fields{"id": p.ID})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	lookups := c.productLookups(ctx, p.ID)
	for _, lk := range lookups {
		sk := c.productKey(lk)
		if store(ctx, c, c.products, wire.KindProduct, sk, p) {
			c.remember(p.ID, lk)
			delete(c.suspect, sk)
			continue
		}
		// the old copy must not outlive the write
		if c.evict(ctx, sk) {
			delete(c.lookups[p.ID], lk)
		}
	}

	patched := 0
	for _, key := range c.sweepPages(ctx) {
		sk := c.pageKey(key)
		if _, ok := c.suspect[sk]; ok {
			// may predate an earlier write; retry the delete instead of patching
			if c.evict(ctx, sk) {
				delete(c.pageKeys, key)
			}
			continue
		}
		pg, ok, err := load(ctx, c, c.pages, wire.KindPage, sk)
		if err != nil {
			c.log.Warn("provider get failed during sweep", Fields{"key": sk, "err": err})
			if c.evict(ctx, sk) {
				delete(c.pageKeys, key)
			}
			continue
		}
		if !ok {
			// evicted by a bounded provider or self-healed
			delete(c.pageKeys, key)
			continue
		}
		c.pageKeys[key] = struct{}{}
		if !replaceProduct(pg.Products, p) {
			continue
		}
		if !store(ctx, c, c.pages, wire.KindPage, sk, pg) {
			// a page that cannot be patched must not be served stale
			if c.evict(ctx, sk) {
				delete(c.pageKeys, key)
			}
			continue
		}
		patched++
	}

	c.hooks.PagesPatched(p.ID, patched)
	c.log.Debug("cache reconciled", Fields{"id": p.ID, "lookups": len(lookups), "pages": patched})
}

// sweepPages returns the indexed page keys plus those the provider lists.
// Caller holds mu.
func (c *Cache) sweepPages(ctx context.Context) []string {
	seen := make(map[string]struct{}, len(c.pageKeys))
	keys := make([]string, 0, len(c.pageKeys))
	add := func(k string) {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range c.pageKeys {
		add(k)
	}
	prefix := c.pageKey("")
	for _, sk := range c.listKeys(ctx, prefix) {
		add(strings.TrimPrefix(sk, prefix))
	}
	return keys
}

// productLookups returns id and every lookup key known to hold product id:
// the ones remembered here and, with a listing provider, stored entries whose
// product has that id. Listed entries that cannot be read are deleted since
// they may hold an old copy. Caller holds mu.
func (c *Cache) productLookups(ctx context.Context, id string) []string {
	out := []string{id}
	known := map[string]struct{}{id: {}}
	for lk := range c.lookups[id] {
		if _, ok := known[lk]; !ok {
			known[lk] = struct{}{}
			out = append(out, lk)
		}
	}

	prefix := c.productKey("")
	for _, sk := range c.listKeys(ctx, prefix) {
		lk := strings.TrimPrefix(sk, prefix)
		if _, ok := known[lk]; ok {
			continue
		}
		p, ok, err := load(ctx, c, c.products, wire.KindProduct, sk)
		if err != nil {
			c.evict(ctx, sk)
			continue
		}
		if ok && p.ID == id {
			known[lk] = struct{}{}
			out = append(out, lk)
		}
	}
	return out
}

// replaceProduct swaps every element with p's id for p in place and reports
// whether anything changed.
func replaceProduct(ps []Product, p Product) bool {
	changed := false
	for i := range ps {
		if ps[i].ID != p.ID || reflect.DeepEqual(ps[i], p) {
			continue
		}
		ps[i] = p
		changed = true
	}
	return changed
}
