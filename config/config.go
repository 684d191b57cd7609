// Package config loads shopctl settings from SHOP_* environment variables,
// reading a local .env file first when one exists.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Accepted enum values.
var (
	Providers   = []string{"memory", "bigcache", "ristretto", "redis"}
	Codecs      = []string{"json", "cbor", "msgpack"}
	LogFormats  = []string{"zap", "logrus", "slog"}
	LogLevels   = []string{"debug", "info", "warn", "error"}
	TokenStores = []string{"memory", "file", "redis"}
)

type Config struct {
	APIURL    string `mapstructure:"SHOP_API_URL"`
	Namespace string `mapstructure:"SHOP_NAMESPACE"`

	// --- cache ---
	Provider          string        `mapstructure:"SHOP_PROVIDER"`
	Codec             string        `mapstructure:"SHOP_CODEC"`
	CacheMaxMB        int           `mapstructure:"SHOP_CACHE_MAX_MB"`    // bigcache, ristretto
	CacheTTL          time.Duration `mapstructure:"SHOP_CACHE_TTL"`       // redis entry lifetime, 0 => none
	MaxEntryBytes     int           `mapstructure:"SHOP_MAX_ENTRY_BYTES"` // redis decode limit
	UploadConcurrency int           `mapstructure:"SHOP_UPLOAD_CONCURRENCY"`
	CoalesceMisses    bool          `mapstructure:"SHOP_COALESCE_MISSES"`

	// --- redis ---
	RedisAddr     string `mapstructure:"SHOP_REDIS_ADDR"`
	RedisPassword string `mapstructure:"SHOP_REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"SHOP_REDIS_DB"`
	RedisPrefix   string `mapstructure:"SHOP_REDIS_PREFIX"`

	// --- session ---
	TokenStore string `mapstructure:"SHOP_TOKEN_STORE"`
	TokenFile  string `mapstructure:"SHOP_TOKEN_FILE"`
	TokenKey   string `mapstructure:"SHOP_TOKEN_KEY"`

	// --- logging ---
	LogFormat string `mapstructure:"SHOP_LOG_FORMAT"`
	LogLevel  string `mapstructure:"SHOP_LOG_LEVEL"`
}

func defaults(v *viper.Viper) {
	home, err := os.UserConfigDir()
	if err != nil {
		home = "."
	}
	v.SetDefault("SHOP_API_URL", "http://localhost:3000/api")
	v.SetDefault("SHOP_NAMESPACE", "shop")
	v.SetDefault("SHOP_PROVIDER", "memory")
	v.SetDefault("SHOP_CODEC", "json")
	v.SetDefault("SHOP_CACHE_MAX_MB", 64)
	v.SetDefault("SHOP_CACHE_TTL", "1h")
	v.SetDefault("SHOP_MAX_ENTRY_BYTES", 1<<20)
	v.SetDefault("SHOP_UPLOAD_CONCURRENCY", 4)
	v.SetDefault("SHOP_COALESCE_MISSES", false)
	v.SetDefault("SHOP_REDIS_ADDR", "localhost:6379")
	v.SetDefault("SHOP_REDIS_DB", 0)
	v.SetDefault("SHOP_REDIS_PREFIX", "shopcache:")
	v.SetDefault("SHOP_TOKEN_STORE", "file")
	v.SetDefault("SHOP_TOKEN_FILE", filepath.Join(home, "shopctl", "token.yaml"))
	v.SetDefault("SHOP_TOKEN_KEY", "shopctl:token")
	v.SetDefault("SHOP_LOG_FORMAT", "zap")
	v.SetDefault("SHOP_LOG_LEVEL", "info")
}

// LoadFromEnv reads envFile (default ".env") when it exists, then SHOP_*
// variables. Variables already set in the environment win over the file.
func LoadFromEnv(envFile ...string) (*Config, error) {
	path := ".env"
	if len(envFile) > 0 && envFile[0] != "" {
		path = envFile[0]
	}
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	for _, k := range v.AllKeys() {
		_ = v.BindEnv(strings.ToUpper(k))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unable to decode: %w", err)
	}
	cfg.Provider = strings.ToLower(cfg.Provider)
	cfg.Codec = strings.ToLower(cfg.Codec)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.TokenStore = strings.ToLower(cfg.TokenStore)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("config: SHOP_API_URL is required")
	}
	if c.Namespace == "" {
		return fmt.Errorf("config: SHOP_NAMESPACE is required")
	}
	for _, e := range []struct {
		key, val string
		allowed  []string
	}{
		{"SHOP_PROVIDER", c.Provider, Providers},
		{"SHOP_CODEC", c.Codec, Codecs},
		{"SHOP_LOG_FORMAT", c.LogFormat, LogFormats},
		{"SHOP_LOG_LEVEL", c.LogLevel, LogLevels},
		{"SHOP_TOKEN_STORE", c.TokenStore, TokenStores},
	} {
		if !slices.Contains(e.allowed, e.val) {
			return fmt.Errorf("config: %s=%q, want one of %s", e.key, e.val, strings.Join(e.allowed, ", "))
		}
	}
	if c.UploadConcurrency < 0 {
		return fmt.Errorf("config: SHOP_UPLOAD_CONCURRENCY must be >= 0, got %d", c.UploadConcurrency)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("config: SHOP_CACHE_TTL must be >= 0, got %s", c.CacheTTL)
	}
	if (c.Provider == "bigcache" || c.Provider == "ristretto") && c.CacheMaxMB <= 0 {
		return fmt.Errorf("config: SHOP_CACHE_MAX_MB must be > 0 for %s", c.Provider)
	}
	return nil
}

// UsesRedis reports whether the cache or the token store needs a redis client.
func (c *Config) UsesRedis() bool {
	return c.Provider == "redis" || c.TokenStore == "redis"
}

// String masks the redis password.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  APIURL: %s\n", c.APIURL)
	fmt.Fprintf(&sb, "  Namespace: %s\n", c.Namespace)
	fmt.Fprintf(&sb, "  Provider: %s\n", c.Provider)
	fmt.Fprintf(&sb, "  Codec: %s\n", c.Codec)
	fmt.Fprintf(&sb, "  CacheMaxMB: %d\n", c.CacheMaxMB)
	fmt.Fprintf(&sb, "  CacheTTL: %s\n", c.CacheTTL)
	fmt.Fprintf(&sb, "  MaxEntryBytes: %d\n", c.MaxEntryBytes)
	fmt.Fprintf(&sb, "  UploadConcurrency: %d\n", c.UploadConcurrency)
	fmt.Fprintf(&sb, "  CoalesceMisses: %v\n", c.CoalesceMisses)
	fmt.Fprintf(&sb, "  RedisAddr: %s\n", c.RedisAddr)
	if c.RedisPassword != "" {
		sb.WriteString("  RedisPassword: ********\n")
	} else {
		sb.WriteString("  RedisPassword: (empty)\n")
	}
	fmt.Fprintf(&sb, "  RedisDB: %d\n", c.RedisDB)
	fmt.Fprintf(&sb, "  RedisPrefix: %s\n", c.RedisPrefix)
	fmt.Fprintf(&sb, "  TokenStore: %s\n", c.TokenStore)
	fmt.Fprintf(&sb, "  TokenFile: %s\n", c.TokenFile)
	fmt.Fprintf(&sb, "  TokenKey: %s\n", c.TokenKey)
	fmt.Fprintf(&sb, "  LogFormat: %s\n", c.LogFormat)
	fmt.Fprintf(&sb, "  LogLevel: %s\n", c.LogLevel)
	return sb.String()
}
