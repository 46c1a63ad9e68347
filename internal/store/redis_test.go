//go:build integration
// +build integration

// Run with: REDIS_ADDR=localhost:6379 go test -tags=integration ./internal/store/...
package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestRedis_KV(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping integration test: REDIS_ADDR not set")
	}

	ctx := context.Background()
	r, err := NewRedis(ctx, RedisConfig{Addr: addr, TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer r.Close()

	key := "tree-checkout-test:" + time.Now().Format(time.RFC3339Nano)
	if err := r.Set(ctx, key, "v"); err != nil {
		t.Fatal(err)
	}
	if v, err := r.Get(ctx, key); err != nil || v != "v" {
		t.Errorf("Get() = %q, %v", v, err)
	}
	r.Del(ctx, key)
	if _, err := r.Get(ctx, key); !errors.Is(err, ErrMissing) {
		t.Errorf("Get() after Del error = %v, want ErrMissing", err)
	}
}
