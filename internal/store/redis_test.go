package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/authguard/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newTestRedis(t)
	runKVStoreContract(t, NewRedisStore(client, "authguard:", 0))
}

func TestRedisStore_PrefixAndTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "authguard:", time.Hour, "ratelimit")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ratelimit:bob", "x"))
	assert.True(t, mr.Exists("authguard:ratelimit:bob"))
	assert.Equal(t, time.Hour, mr.TTL("authguard:ratelimit:bob"))

	mr.FastForward(2 * time.Hour)
	_, found, err := s.Get(ctx, "ratelimit:bob")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_TTLOnlyAppliesToListedNamespaces(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "authguard:", 2*time.Minute, "ratelimit")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ratelimit:bob", "window"))
	require.NoError(t, s.Set(ctx, "lockout:bob", "locked"))
	require.NoError(t, s.Set(ctx, "twofactor:bob", "codes"))
	// Prefix match is on the whole namespace
	require.NoError(t, s.Set(ctx, "ratelimitx:bob", "other"))

	assert.Zero(t, mr.TTL("authguard:lockout:bob"))
	assert.Zero(t, mr.TTL("authguard:twofactor:bob"))
	assert.Zero(t, mr.TTL("authguard:ratelimitx:bob"))

	mr.FastForward(3 * time.Minute)

	_, found, err := s.Get(ctx, "ratelimit:bob")
	require.NoError(t, err)
	assert.False(t, found)

	for _, key := range []string{"lockout:bob", "twofactor:bob", "ratelimitx:bob"} {
		_, found, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, found, key)
	}
}

func TestRedisStore_NoNamespacesMeansNoExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "", time.Minute)

	require.NoError(t, s.Set(context.Background(), "ratelimit:bob", "x"))
	assert.Zero(t, mr.TTL("ratelimit:bob"))
}

func TestRedisStore_BackendDownIsUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "", 0)
	mr.Close()

	_, _, err := s.Get(context.Background(), "lockout:bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrStoreUnavailable))
	assert.Equal(t, models.ClassUnavailable, models.ClassOf(err))

	assert.Error(t, s.HealthCheck(context.Background()))
}

func TestOpenRedisStore(t *testing.T) {
	mr, _ := newTestRedis(t)

	s, err := OpenRedisStore(context.Background(), RedisConfig{URL: "redis://" + mr.Addr(), KeyPrefix: "p:"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.HealthCheck(context.Background()))
	_, err = OpenRedisStore(context.Background(), RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}
