package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisStore
type RedisConfig struct {
	URL           string
	KeyPrefix     string        // e.g. "authguard:"
	TTL           time.Duration // 0 = keys never expire
	TTLNamespaces []string      // namespaces the TTL applies to; other keys never expire
	PoolSize      int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// RedisStore is a KVStore backed by Redis string keys
type RedisStore struct {
	client        redis.UniversalClient
	prefix        string
	ttl           time.Duration
	ttlNamespaces []string
}

// NewRedisStore wraps an existing client. ttl is only applied to keys in
// ttlNamespaces, so state that must outlive it (lockouts, enrolled factors)
// is never expired by Redis.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, ttlNamespaces ...string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, ttlNamespaces: ttlNamespaces}
}

// OpenRedisStore parses cfg.URL, connects, and verifies the connection
func OpenRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStore(client, cfg.KeyPrefix, cfg.TTL, cfg.TTLNamespaces...), nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// Get returns the value stored under key
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, wrapBackendError("get", key, err)
	}
	return v, true, nil
}

// ttlFor returns the expiry for key, 0 when it should persist
func (s *RedisStore) ttlFor(key string) time.Duration {
	for _, ns := range s.ttlNamespaces {
		if strings.HasPrefix(key, ns+":") {
			return s.ttl
		}
	}
	return 0
}

// Set stores value under key. Keys in a TTL namespace get the configured expiry.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttlFor(key)).Err(); err != nil {
		return wrapBackendError("set", key, err)
	}
	return nil
}

// Delete removes key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return wrapBackendError("delete", key, err)
	}
	return nil
}

// HealthCheck pings Redis
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close releases the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
