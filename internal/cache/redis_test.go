package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

// Runs against a real redis when REDIS_ADDR is set.
func TestRedis_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	r := NewRedis(RedisConfig{Addr: addr, TTL: time.Minute, Prefix: "projecthub-test:"})
	defer r.Close()

	ctx := context.Background()
	if err := r.Ping(ctx); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	if err := r.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := r.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("get: %q ok=%v err=%v", got, ok, err)
	}
	if err := r.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := r.Get(ctx, "k"); ok {
		t.Fatalf("key should be gone")
	}
}
