package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a store connected to a miniredis instance
func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-ns")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s, mr
}

func TestNewRedisStore(t *testing.T) {
	t.Run("creates store successfully", func(t *testing.T) {
		s, _ := setupTestStore(t)
		assert.NotNil(t, s)
		assert.Equal(t, "test-ns", s.namespace)
	})

	t.Run("rejects empty namespace", func(t *testing.T) {
		_, err := NewRedisStore(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "namespace cannot be empty")
	})

	t.Run("parses url", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s, err := NewRedisStoreFromURL("redis://"+mr.Addr()+"/0", "ns")
		require.NoError(t, err)
		defer s.Close()
		assert.NoError(t, s.Ping(context.Background()))
	})

	t.Run("rejects bad url", func(t *testing.T) {
		_, err := NewRedisStoreFromURL("http://nope", "ns")
		assert.Error(t, err)
	})
}

func TestRedisStore(t *testing.T) {
	s, _ := setupTestStore(t)
	exerciseStore(t, s)
}

func TestRedisStore_WritesPlainStrings(t *testing.T) {
	s, mr := setupTestStore(t)

	key := alchemy.CacheKey("test-ns")
	require.NoError(t, s.Save(context.Background(), key, []byte(`{}`)))

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, `{}`, got)
}

func TestRedisStore_ConnectionError(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())

	s, err := NewRedisStore(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}, "test-ns")
	require.NoError(t, err)
	defer s.Close()
	mr.Close()

	_, err = s.Load(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, IsNotFound(err), "connection errors are not not-found")
}

func TestRedisStore_Discoveries(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	sub, err := s.SubscribeDiscoveries(ctx)
	require.NoError(t, err)
	defer sub.Close()

	el := alchemy.Element{ID: "steam", Name: "Steam", Emoji: "💨"}
	require.NoError(t, s.PublishDiscovery(ctx, el))

	select {
	case got := <-sub.Events():
		assert.Equal(t, el, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for discovery event")
	}

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close(), "close is idempotent")
}

func TestRedisStore_DiscoveryBadPayload(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	sub, err := s.SubscribeDiscoveries(ctx)
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish(alchemy.DiscoveryEventsChannel("test-ns"), "not json")

	select {
	case err := <-sub.Errors():
		assert.Contains(t, err.Error(), "failed to unmarshal discovery event")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for subscription error")
	}
}
