package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/shopcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// Redis shares entries across processes. Entries are written without TTL
// unless the cache passes one; keys are prefixed with Config.Prefix.
type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	closeClient bool
}

var (
	_ pr.Provider = (*Redis)(nil)
	_ pr.Lister   = (*Redis)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	Prefix      string // optional, e.g. "storefront:"
	CloseClient bool   // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, prefix: cfg.Prefix, closeClient: cfg.CloseClient}, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, p.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0 // treat non-positive TTLs as "no expiry" per provider contract
	}

	err := p.rdb.Set(ctx, p.prefix+key, value, ttl).Err()
	if err != nil {
		return false, err
	}
	return true, nil
}

// Keys walks the keyspace with SCAN; keys are returned without Config.Prefix.
func (p *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := p.rdb.Scan(ctx, 0, globEscape(p.prefix+prefix)+"*", 256).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), p.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// globEscape quotes the MATCH metacharacters in s.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, p.prefix+key).Err()
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
