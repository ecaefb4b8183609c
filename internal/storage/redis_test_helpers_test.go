package storage

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	testcontainers "github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

// newMiniRedisStorageForTest returns a store backed by an embedded Redis
// server. The server is returned so tests can fast-forward key expiry.
func newMiniRedisStorageForTest(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := NewRedisStorageFromClient(client)
	if err != nil {
		t.Fatalf("NewRedisStorageFromClient() error = %v", err)
	}
	return s, mr
}

// newRedisStorageForTest starts a real Redis in a container. It skips when
// no container provider is available.
func newRedisStorageForTest(t *testing.T) (*RedisStorage, func()) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := rediscontainer.Run(ctx, "redis:7.2-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("container mapped port: %v", err)
	}

	p, err := strconv.Atoi(port.Port())
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("parse mapped port: %v", err)
	}

	store, err := NewRedisStorage(&RedisConfig{
		Host:        host,
		Port:        p,
		PoolSize:    20,
		MaxRetries:  3,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("NewRedisStorage() error: %v", err)
	}

	cleanup := func() {
		_ = store.Close()
		_ = container.Terminate(context.Background())
	}
	return store, cleanup
}
