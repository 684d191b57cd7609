// Package asynchook moves hook calls off the cache's hot path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    HitEvery:      100, // sample logs: ~every 100th hit
//	    SelfHealEvery: 1,   // log every self-heal
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := shopcache.New(shopcache.Options{
//	    Namespace: "shop",
//	    Backend:   backend,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/shopcache"
)

// Hooks queues every call for a worker pool. Calls that find the queue full
// are dropped and counted.
type Hooks struct {
	inner   shopcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ shopcache.Hooks = (*Hooks)(nil)

func New(inner shopcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains the queue and stops the workers. Later calls are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// lost the race with Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) CacheHit(kind, key string)  { h.try(func() { h.inner.CacheHit(kind, key) }) }
func (h *Hooks) CacheMiss(kind, key string) { h.try(func() { h.inner.CacheMiss(kind, key) }) }
func (h *Hooks) SelfHeal(k, r string)       { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string) {
	h.try(func() { h.inner.ProviderSetRejected(k) })
}
func (h *Hooks) FetchFailed(kind, key string, err error) {
	h.try(func() { h.inner.FetchFailed(kind, key, err) })
}
func (h *Hooks) PagesPatched(id string, n int) {
	h.try(func() { h.inner.PagesPatched(id, n) })
}
func (h *Hooks) UploadFailed(i int, name string, err error) {
	h.try(func() { h.inner.UploadFailed(i, name, err) })
}
