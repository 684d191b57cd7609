// Package sloghooks reports shopcache hook events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/shopcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery      uint64
	MissEvery     uint64
	SelfHealEvery uint64
	// Optional key redactor for storage keys. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr      atomic.Uint64
	missCtr     atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ shopcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) CacheHit(kind, key string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("shopcache.hit", "kind", kind, "key", key)
}

func (h *Hooks) CacheMiss(kind, key string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("shopcache.miss", "kind", kind, "key", key)
}

func (h *Hooks) FetchFailed(kind, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("shopcache.fetch_failed", "kind", kind, "key", key, "err", err)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("shopcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("shopcache.provider_set_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) PagesPatched(productID string, n int) {
	if h.l == nil {
		return
	}
	h.l.Info("shopcache.pages_patched", "id", productID, "pages", n)
}

func (h *Hooks) UploadFailed(index int, name string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("shopcache.upload_failed",
		"index", index,
		"name", name,
		"err", err)
}
