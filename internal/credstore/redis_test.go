package credstore

import (
	"context"
	"testing"

	"github.com/joeshaw/envdecode"
)

func TestRedisPartition(t *testing.T) {
	// Graceful skip in environments without a reachable Redis.
	r, err := NewRedisFromEnv()
	if err != nil {
		t.Skipf("skipping redis partition tests: %v", err)
		return
	}
	defer func() { _ = r.Close() }()

	ctx := context.Background()
	const key = "redis_test_access_token"

	if err := r.Set(ctx, key, "tok-42"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := r.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || v != "tok-42" {
		t.Fatalf("unexpected value: %q ok=%v", v, ok)
	}

	if err := r.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, err = r.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if ok {
		t.Fatal("expected key to be gone")
	}
}

func TestRedisConfigDecode(t *testing.T) {
	var cfg RedisConfig
	if err := envdecode.Decode(&cfg); err != nil {
		t.Fatalf("decode redis config: %v", err)
	}
	if cfg.Addr == "" {
		t.Fatal("expected a default addr")
	}
	if cfg.KeyPrefix == "" {
		t.Fatal("expected a default key prefix")
	}
}
