// Package config loads client settings from a YAML file, a .env file and
// RIAKDT_* environment variables, in that order of precedence.
package config

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"riakdt/backend"
	"riakdt/cache"
	"riakdt/common"
	"riakdt/core"
	"riakdt/crdt"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RIAKDT_"

// DefaultEnvFile is read when present; a missing default file is not an error.
const DefaultEnvFile = ".env"

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheBadger = "badger"
)

// Config is the complete client configuration.
type Config struct {
	Servers    []string      `yaml:"servers"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxPending int           `yaml:"max_pending"`
	MaxSockets int           `yaml:"max_sockets"`
	MaxRetries int           `yaml:"max_retries"`
	ReturnBody bool          `yaml:"return_body"`

	Namespaces NamespaceConfig `yaml:"namespaces"`
	Log        LogConfig       `yaml:"log"`
	Cache      CacheConfig     `yaml:"cache"`
}

// NamespaceConfig names the default bucket types.
type NamespaceConfig struct {
	Counters string `yaml:"counters"`
	Sets     string `yaml:"sets"`
	Maps     string `yaml:"maps"`
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// CacheConfig selects the read cache placed in front of the store.
type CacheConfig struct {
	Backend    string        `yaml:"backend"`
	TTL        time.Duration `yaml:"ttl"`
	RedisAddr  string        `yaml:"redis_addr"`
	BadgerPath string        `yaml:"badger_path"`
}

// Default returns a configuration for a single local node.
func Default() *Config {
	defaults := backend.DefaultOptions()
	return &Config{
		Servers:    []string{"127.0.0.1:8098"},
		Timeout:    defaults.Timeout,
		MaxPending: defaults.MaxPending,
		MaxSockets: defaults.MaxSockets,
		MaxRetries: defaults.MaxRetries,
		Namespaces: NamespaceConfig{
			Counters: common.DefaultCounterNamespace,
			Sets:     common.DefaultSetNamespace,
			Maps:     common.DefaultMapNamespace,
		},
		Log: LogConfig{Level: "info"},
		Cache: CacheConfig{
			Backend: CacheNone,
			TTL:     cache.DefaultCacheOptions().DefaultTTL,
		},
	}
}

// Load reads path (skipped when empty), then the env files, then the
// environment. Without envFiles the default .env is loaded if it exists.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open config %s", path)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if len(envFiles) == 0 {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			envFiles = []string{DefaultEnvFile}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, errors.Wrap(err, "load env files")
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("SERVERS"); ok {
		c.Servers = backend.ParseServers(v)
	}
	if v, ok := get("TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "%sTIMEOUT", EnvPrefix)
		}
		c.Timeout = d
	}
	if v, ok := get("MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%sMAX_RETRIES", EnvPrefix)
		}
		c.MaxRetries = n
	}
	if v, ok := get("RETURN_BODY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "%sRETURN_BODY", EnvPrefix)
		}
		c.ReturnBody = b
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("CACHE"); ok {
		c.Cache.Backend = strings.ToLower(v)
	}
	if v, ok := get("REDIS_ADDR"); ok {
		c.Cache.RedisAddr = v
	}
	if v, ok := get("BADGER_PATH"); ok {
		c.Cache.BadgerPath = v
	}
	return nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return errors.New("config: no servers configured")
	}
	if _, err := core.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "config: log level")
	}
	switch c.Cache.Backend {
	case "", CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("config: redis cache needs redis_addr")
		}
	case CacheBadger:
	default:
		return errors.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}

// BackendOptions converts the pool settings. A zero MaxRetries disables
// retries.
func (c *Config) BackendOptions(logger *zap.Logger, reg prometheus.Registerer) *backend.Options {
	retries := c.MaxRetries
	if retries == 0 {
		retries = -1
	}
	return &backend.Options{
		MaxPending: c.MaxPending,
		MaxSockets: c.MaxSockets,
		Timeout:    c.Timeout,
		MaxRetries: retries,
		Logger:     logger,
		Registerer: reg,
	}
}

// ClientOptions converts the data type settings.
func (c *Config) ClientOptions(logger *zap.Logger) []crdt.Option {
	return []crdt.Option{
		crdt.WithReturnBody(c.ReturnBody),
		crdt.WithNamespaces(c.Namespaces.Counters, c.Namespaces.Sets, c.Namespaces.Maps),
		crdt.WithLogger(logger),
	}
}

// Stack is a ready backend with the resources it holds.
type Stack struct {
	HTTP    *backend.HTTPClient
	Backend backend.Client
	cache   cache.Cache[*backend.CachedResponse]
}

// Close releases the cache.
func (s *Stack) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

// Build creates the HTTP client and wraps it in the configured cache.
func (c *Config) Build(logger *zap.Logger, reg prometheus.Registerer) (*Stack, error) {
	httpClient, err := backend.NewHTTPClient(c.Servers, c.BackendOptions(logger, reg))
	if err != nil {
		return nil, err
	}

	store, err := c.newCache()
	if err != nil {
		return nil, err
	}

	stack := &Stack{HTTP: httpClient, Backend: httpClient, cache: store}
	if store != nil {
		stack.Backend = backend.NewCachingClient(httpClient, store, c.Cache.TTL)
		core.Named("config").Debug("read cache enabled", zap.String("backend", c.Cache.Backend))
	}
	return stack, nil
}

// Client builds a data type client on top of Build.
func (c *Config) Client(logger *zap.Logger, reg prometheus.Registerer) (*crdt.Client, *Stack, error) {
	stack, err := c.Build(logger, reg)
	if err != nil {
		return nil, nil, err
	}
	return crdt.NewClient(stack.Backend, c.ClientOptions(logger)...), stack, nil
}

func (c *Config) newCache() (cache.Cache[*backend.CachedResponse], error) {
	base := cache.DefaultCacheOptions()
	if c.Cache.TTL > 0 {
		base.DefaultTTL = c.Cache.TTL
	}

	switch c.Cache.Backend {
	case "", CacheNone:
		return nil, nil
	case CacheMemory:
		return cache.NewMemoryCache[*backend.CachedResponse](base), nil
	case CacheRedis:
		opts := cache.DefaultRedisCacheOptions()
		opts.CacheOptions = *base
		return cache.NewRedisCache[*backend.CachedResponse](c.Cache.RedisAddr, opts)
	case CacheBadger:
		opts := cache.DefaultBadgerCacheOptions()
		opts.CacheOptions = *base
		opts.InMemory = c.Cache.BadgerPath == ""
		return cache.NewBadgerCache[*backend.CachedResponse](c.Cache.BadgerPath, opts)
	default:
		return nil, errors.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
}

// Ping checks every configured server through the stack's pooled client.
func (s *Stack) Ping(ctx context.Context) error {
	return s.HTTP.Ping(ctx)
}
