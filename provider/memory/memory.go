package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/shopcache/provider"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

// Provider is an unbounded map. Entries live until deleted, expired
// (only when Set was given a TTL) or the provider is closed.
type Provider struct {
	mu sync.RWMutex
	m  map[string]entry
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Lister   = (*Provider)(nil)
)

func New() *Provider { return &Provider{m: make(map[string]entry)} }

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	e, ok := p.m[key]
	p.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		p.mu.Lock()
		if cur, ok := p.m[key]; ok && cur.exp.Equal(e.exp) {
			delete(p.m, key)
		}
		p.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.mu.Lock()
	p.m[key] = entry{v: value, exp: exp}
	p.mu.Unlock()
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

// Keys lists unexpired keys with the given prefix.
func (p *Provider) Keys(_ context.Context, prefix string) ([]string, error) {
	now := time.Now()
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for k, e := range p.m {
		if strings.HasPrefix(k, prefix) && (e.exp.IsZero() || now.Before(e.exp)) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Len reports the number of stored keys, expired ones included.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}

func (p *Provider) Close(_ context.Context) error {
	p.mu.Lock()
	p.m = make(map[string]entry)
	p.mu.Unlock()
	return nil
}
