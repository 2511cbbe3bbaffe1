package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func newTestTab(t *testing.T, client *redis.Client) *RedisSessionStorage {
	s := NewRedisSessionStorage(client, "test-"+uuid.NewString(), time.Minute)
	t.Cleanup(func() { client.Del(context.Background(), s.key()) })
	return s
}

func TestRedisSessionStorage_GetMissing(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	s := newTestTab(t, client)

	v, ok, err := s.Get(context.Background(), "sp_shop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || v != "" {
		t.Errorf("expected missing key, got %q", v)
	}
}

func TestRedisSessionStorage_SetGet(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	s := newTestTab(t, client)

	if err := s.Set(ctx, "sp_shop", "acme.myshopify.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Set(ctx, "sp_shop", "other.myshopify.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, ok, err := s.Get(ctx, "sp_shop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || v != "other.myshopify.com" {
		t.Errorf("expected last write to win, got %q", v)
	}

	ttl, _ := client.TTL(ctx, s.key()).Result()
	if ttl <= 0 {
		t.Errorf("expected key to carry a ttl, got %v", ttl)
	}
}

func TestRedisSessionStorage_TabsAreIsolated(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	a := newTestTab(t, client)
	b := newTestTab(t, client)

	a.Set(ctx, "sp_host", "aG9zdA==")

	if _, ok, _ := b.Get(ctx, "sp_host"); ok {
		t.Error("expected other tab not to see the key")
	}
}

func TestRedisSessionStorage_SetIfAbsent_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	s := newTestTab(t, client)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 100

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SetIfAbsent(ctx, "stockpilot_embed_autoredirect_v2", "1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	// Only one should succeed
	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}
}

func TestRedisSessionStorage_WritesRefreshLockTTL(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	s := newTestTab(t, client)

	ok, err := s.SetIfAbsent(ctx, "stockpilot_embed_autoredirect_v2", "1")
	if err != nil || !ok {
		t.Fatalf("expected lock to be set, got ok=%v err=%v", ok, err)
	}

	// Simulate a tab nearing the end of its TTL.
	if err := client.Expire(ctx, s.key(), 2*time.Second).Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Set(ctx, "sp_shop", "acme.myshopify.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ttl, err := client.TTL(ctx, s.key()).Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl <= 2*time.Second {
		t.Errorf("expected identity write to extend the lock, ttl=%v", ttl)
	}

	v, ok, err := s.Get(ctx, "stockpilot_embed_autoredirect_v2")
	if err != nil || !ok || v != "1" {
		t.Errorf("expected lock to survive, got %q ok=%v err=%v", v, ok, err)
	}

	ok, err = s.SetIfAbsent(ctx, "stockpilot_embed_autoredirect_v2", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected lock to remain set")
	}
}
