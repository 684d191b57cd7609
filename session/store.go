package session

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// TokenStore persists a single bearer token. Load returns "" when none is
// stored.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Remove(ctx context.Context) error
}

var (
	_ TokenStore = (*MemoryStore)(nil)
	_ TokenStore = (*FileStore)(nil)
	_ TokenStore = (*RedisStore)(nil)
)

type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func (m *MemoryStore) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryStore) Save(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Remove(context.Context) error {
	return m.Save(context.Background(), "")
}

// FileStore keeps the token in a small YAML document, readable only by the
// owner.
type FileStore struct {
	Path string
}

type tokenFile struct {
	Token string `yaml:"token"`
}

func (f *FileStore) Load(context.Context) (string, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := yaml.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	return tf.Token, nil
}

func (f *FileStore) Save(_ context.Context, token string) error {
	b, err := yaml.Marshal(tokenFile{Token: token})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(f.Path, b, 0o600)
}

func (f *FileStore) Remove(context.Context) error {
	err := os.Remove(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// RedisStore keeps the token under Key, for sessions shared between hosts.
type RedisStore struct {
	Client goredis.UniversalClient
	Key    string
}

func (r *RedisStore) Load(ctx context.Context) (string, error) {
	v, err := r.Client.Get(ctx, r.Key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *RedisStore) Save(ctx context.Context, token string) error {
	return r.Client.Set(ctx, r.Key, token, 0).Err()
}

func (r *RedisStore) Remove(ctx context.Context) error {
	return r.Client.Del(ctx, r.Key).Err()
}
