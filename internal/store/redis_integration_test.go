//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisURL := fmt.Sprintf("redis://%s:%s", host, port.Port())

	cleanup := func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}

	return redisURL, cleanup
}

func TestRedisStore_AgainstRealRedis(t *testing.T) {
	redisURL, cleanup := setupRedis(t)
	defer cleanup()

	s, err := NewRedisStoreFromURL(redisURL, "integration")
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, s.Ping(ctx))
	exerciseStore(t, s)

	sub, err := s.SubscribeDiscoveries(ctx)
	require.NoError(t, err)
	defer sub.Close()

	el := alchemy.Element{ID: "obsidian", Name: "Obsidian"}
	require.NoError(t, s.PublishDiscovery(ctx, el))

	select {
	case got := <-sub.Events():
		assert.Equal(t, el, got)
	case <-ctx.Done():
		t.Fatal("timeout waiting for discovery event")
	}
}
