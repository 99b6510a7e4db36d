package cache

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/tiercache/tiercache/internal/circuit"
	"github.com/tiercache/tiercache/internal/tier"
	"github.com/tiercache/tiercache/pkg/codec"
	cacheerrors "github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

// Config is the full cache configuration. Memory MaxSize and TTL have no
// defaults and must be set explicitly; everything else falls back to the
// documented defaults in DefaultConfig.
type Config struct {
	// Namespace prefixes every key across all tiers.
	Namespace string `yaml:"namespace"`

	// Serialization selects the codec mode: "binary" (msgpack) or
	// "text" (json).
	Serialization codec.Mode `yaml:"serialization"`

	// Compression enables gzip for payloads above CompressionThreshold.
	Compression          bool `yaml:"compression"`
	CompressionThreshold int  `yaml:"compression_threshold"`

	Memory MemoryConfig `yaml:"memory"`
	Remote RemoteConfig `yaml:"remote"`
	Edge   EdgeConfig   `yaml:"edge"`
	Client ClientConfig `yaml:"client"`

	Predictive PredictiveConfig `yaml:"predictive"`
	Warmup     WarmupConfig     `yaml:"warmup"`
	Workers    WorkersConfig    `yaml:"workers"`

	// StatsInterval is how often a stats snapshot event is emitted.
	StatsInterval time.Duration `yaml:"stats_interval"`

	// Singleflight collapses concurrent misses for the same key into one
	// slow-tier lookup. Off by default.
	Singleflight bool `yaml:"singleflight"`

	// Breaker configures the per-tier circuit breakers.
	Breaker circuit.Config `yaml:"breaker"`
}

// MemoryConfig configures the in-process tier. MaxSize counts entries.
type MemoryConfig struct {
	MaxSize        int           `yaml:"max_size"`
	TTL            time.Duration `yaml:"ttl"`
	UpdateAgeOnGet bool          `yaml:"update_age_on_get"`
}

// RemoteConfig configures the shared key-value tier.
type RemoteConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	TTL      time.Duration `yaml:"ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EdgeConfig configures the edge HTTP cache tier.
type EdgeConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	TTL      time.Duration `yaml:"ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ClientConfig configures the persisted store on the caller's machine.
type ClientConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Directory string        `yaml:"directory"`
	TTL       time.Duration `yaml:"ttl"`
	MaxBytes  int64         `yaml:"max_bytes"`
	Timeout   time.Duration `yaml:"timeout"`

	// StorageKind names the persistence mechanism. "disk" is the only
	// built-in kind; other kinds are supplied via WithTier.
	StorageKind string `yaml:"storage_kind"`
}

// PredictiveConfig configures the prefetch engine.
type PredictiveConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Patterns []PatternConfig `yaml:"patterns"`
}

// WarmupConfig configures hot-key tracking and warmup.
type WarmupConfig struct {
	// HitThreshold is the hit count past which a key is considered hot.
	HitThreshold uint64 `yaml:"hit_threshold"`

	// MaxTracked caps the number of distinct keys tracked.
	MaxTracked int `yaml:"max_tracked"`

	// Concurrency bounds parallel warmup lookups.
	Concurrency int `yaml:"concurrency"`

	// OnStart triggers a warmup pass in the background right after
	// construction, re-priming faster tiers from slower ones.
	OnStart bool `yaml:"on_start"`
}

// WorkersConfig sizes the background worker pool.
type WorkersConfig struct {
	Count     int `yaml:"count"`
	QueueSize int `yaml:"queue_size"`
}

// DefaultConfig returns the defaults for everything except the memory
// tier, whose MaxSize and TTL remain zero and must be set by the caller.
func DefaultConfig() Config {
	return Config{
		Namespace:            "tiercache",
		Serialization:        codec.ModeBinary,
		Compression:          true,
		CompressionThreshold: codec.DefaultCompressionThreshold,
		Remote: RemoteConfig{
			Timeout: 250 * time.Millisecond,
		},
		Edge: EdgeConfig{
			Timeout: 500 * time.Millisecond,
		},
		Client: ClientConfig{
			Timeout: 200 * time.Millisecond,
		},
		Warmup: WarmupConfig{
			HitThreshold: 3,
			MaxTracked:   1024,
			Concurrency:  4,
		},
		Workers: WorkersConfig{
			Count:     4,
			QueueSize: 256,
		},
		StatsInterval: 30 * time.Second,
	}
}

// LoadFromFile reads a yaml configuration, layered over DefaultConfig.
func LoadFromFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, cacheerrors.Wrap(cacheerrors.ErrCodeConfigLoad, "read config file", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, cacheerrors.Wrap(cacheerrors.ErrCodeConfigLoad, "parse config file", err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides backend endpoints from the environment, so deploys
// can repoint a cache without editing config files.
//
// Recognized variables: TIERCACHE_NAMESPACE, TIERCACHE_REDIS_ADDR,
// TIERCACHE_REDIS_PASSWORD, TIERCACHE_REDIS_DB, TIERCACHE_EDGE_ENDPOINT,
// TIERCACHE_EDGE_TOKEN, TIERCACHE_CLIENT_DIR.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TIERCACHE_NAMESPACE"); v != "" {
		c.Namespace = v
	}
	if v := os.Getenv("TIERCACHE_REDIS_ADDR"); v != "" {
		c.Remote.Addr = v
		c.Remote.Enabled = true
	}
	if v := os.Getenv("TIERCACHE_REDIS_PASSWORD"); v != "" {
		c.Remote.Password = v
	}
	if v := os.Getenv("TIERCACHE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Remote.DB = db
		}
	}
	if v := os.Getenv("TIERCACHE_EDGE_ENDPOINT"); v != "" {
		c.Edge.Endpoint = v
		c.Edge.Enabled = true
	}
	if v := os.Getenv("TIERCACHE_EDGE_TOKEN"); v != "" {
		c.Edge.Token = v
	}
	if v := os.Getenv("TIERCACHE_CLIENT_DIR"); v != "" {
		c.Client.Directory = v
		c.Client.Enabled = true
	}
}

// Validate checks the configuration. The memory tier's capacity and TTL
// are required; there is no implicit default for either.
func (c *Config) Validate() error {
	if c.Memory.MaxSize <= 0 {
		return cacheerrors.New(cacheerrors.ErrCodeConfigValidation, "memory.max_size must be set and positive")
	}
	if c.Memory.TTL <= 0 {
		return cacheerrors.New(cacheerrors.ErrCodeConfigValidation, "memory.ttl must be set and positive")
	}
	if c.Remote.Enabled && c.Remote.Addr == "" {
		return cacheerrors.New(cacheerrors.ErrCodeConfigValidation, "remote.addr required when remote tier is enabled")
	}
	if c.Edge.Enabled && c.Edge.Endpoint == "" {
		return cacheerrors.New(cacheerrors.ErrCodeConfigValidation, "edge.endpoint required when edge tier is enabled")
	}
	if c.Client.Enabled && c.Client.Directory == "" {
		return cacheerrors.New(cacheerrors.ErrCodeConfigValidation, "client.directory required when client tier is enabled")
	}
	if c.Client.StorageKind != "" && c.Client.StorageKind != "disk" {
		return cacheerrors.Newf(cacheerrors.ErrCodeConfigValidation,
			"unknown client storage kind %q", c.Client.StorageKind)
	}
	if c.CompressionThreshold < 0 {
		return cacheerrors.New(cacheerrors.ErrCodeConfigValidation, "compression_threshold must not be negative")
	}
	for _, p := range c.Predictive.Patterns {
		if p.Confidence < 0 || p.Confidence > 1 {
			return cacheerrors.Newf(cacheerrors.ErrCodeConfigValidation,
				"predictive pattern %q confidence %v outside [0,1]", p.Match, p.Confidence)
		}
	}
	return nil
}

// Option customizes cache construction.
type Option func(*Cache)

// WithTier replaces or injects a slow tier backend by name ("remote",
// "edge", "client"). Used mostly by tests and by callers bringing their
// own backend implementation.
func WithTier(name string, t types.Tier, ttl time.Duration, timeout time.Duration) Option {
	return func(c *Cache) {
		c.injected = append(c.injected, injectedTier{
			name:    name,
			backend: t,
			ttl:     ttl,
			timeout: timeout,
		})
	}
}

type injectedTier struct {
	name    string
	backend types.Tier
	ttl     time.Duration
	timeout time.Duration
}

// buildRemote constructs the real remote backend from config.
func (c *Config) buildRemote() (types.Tier, error) {
	return tier.NewRemote(tier.RemoteConfig{
		Addr:      c.Remote.Addr,
		Password:  c.Remote.Password,
		DB:        c.Remote.DB,
		PoolSize:  c.Remote.PoolSize,
		Namespace: c.Namespace,
	})
}

// buildEdge constructs the real edge backend from config.
func (c *Config) buildEdge() (types.Tier, error) {
	return tier.NewEdge(tier.EdgeConfig{
		Endpoint:  c.Edge.Endpoint,
		Token:     c.Edge.Token,
		Namespace: c.Namespace,
	})
}

// buildClient constructs the real client-persisted backend from config.
func (c *Config) buildClient() (types.Tier, error) {
	return tier.NewClient(tier.ClientConfig{
		Directory: c.Client.Directory,
		Namespace: c.Namespace,
		MaxBytes:  c.Client.MaxBytes,
	})
}
