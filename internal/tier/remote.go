// Package tier contains the slow tier backends: remote key-value store,
// edge HTTP cache, and client-persisted disk store. Each implements
// types.Tier and stores opaque envelope bytes under namespaced keys.
package tier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	cacheerrors "github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/logging"
	"github.com/tiercache/tiercache/pkg/types"
)

// RemoteConfig configures the remote key-value tier.
type RemoteConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string `yaml:"addr"`

	// Password is the optional server password.
	Password string `yaml:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db"`

	// Namespace prefixes every key so multiple caches can share a server.
	Namespace string `yaml:"namespace"`

	// PoolSize is the connection pool size. Zero uses the client default.
	PoolSize int `yaml:"pool_size"`

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Remote is the shared key-value tier backed by Redis. Entries written here
// are visible to every process pointed at the same server and namespace.
type Remote struct {
	client    *redis.Client
	namespace string
	logger    zerolog.Logger
}

// NewRemote creates the remote tier. It does not dial eagerly; the first
// operation does, so a down server degrades the cache instead of failing
// construction.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.Addr == "" {
		return nil, cacheerrors.New(cacheerrors.ErrCodeMissingConfig, "remote tier requires an address")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "tiercache"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	return &Remote{
		client:    client,
		namespace: cfg.Namespace,
		logger:    logging.NewLogger("tier-remote"),
	}, nil
}

// Name implements types.Tier.
func (r *Remote) Name() string {
	return "remote"
}

func (r *Remote) key(key string) string {
	return fmt.Sprintf("%s:%s", r.namespace, key)
}

// Get implements types.Tier.
func (r *Remote) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, types.ErrNotFound
		}
		return nil, cacheerrors.NewTierUnavailable(r.Name(), "get", err)
	}
	return data, nil
}

// Set implements types.Tier. A non-positive ttl stores without expiration.
func (r *Remote) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return cacheerrors.NewTierUnavailable(r.Name(), "set", err)
	}
	return nil
}

// Delete implements types.Tier.
func (r *Remote) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return cacheerrors.NewTierUnavailable(r.Name(), "delete", err)
	}
	return nil
}

// Clear implements types.Tier. It scans the namespace and deletes in
// batches rather than flushing the database, so co-tenants are untouched.
func (r *Remote) Clear(ctx context.Context) error {
	var (
		cursor  uint64
		deleted int
	)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.namespace+":*", 256).Result()
		if err != nil {
			return cacheerrors.NewTierUnavailable(r.Name(), "clear", err)
		}

		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return cacheerrors.NewTierUnavailable(r.Name(), "clear", err)
			}
			deleted += len(keys)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	r.logger.Debug().Int("deleted", deleted).Msg("cleared remote namespace")
	return nil
}

// Close implements types.Tier.
func (r *Remote) Close() error {
	return r.client.Close()
}

// Ping verifies connectivity to the backend.
func (r *Remote) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return cacheerrors.NewTierUnavailable(r.Name(), "ping", err)
	}
	return nil
}
