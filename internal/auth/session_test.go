package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// liveRedis returns a client against TEST_REDIS_ADDR, skipping the
// test when no live redis is available.
func liveRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run real redis test")
	}
	return redis.NewClient(&redis.Options{Addr: addr, DB: 15})
}

func TestSessionSetGetDelete(t *testing.T) {
	rdb := liveRedis(t)
	ctx := context.Background()

	ownerID := "user-12345"
	token := "session_test_token"

	if err := SetSession(ctx, rdb, ownerID, token, 2*time.Second); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}

	gotToken, err := GetSession(ctx, rdb, ownerID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if gotToken != token {
		t.Errorf("expected token %q, got %q", token, gotToken)
	}

	if err := DeleteSession(ctx, rdb, ownerID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	if _, err := GetSession(ctx, rdb, ownerID); err == nil {
		t.Errorf("expected error for deleted session, got nil")
	}
}

func TestOnlineOwnerCount(t *testing.T) {
	rdb := liveRedis(t)
	ctx := context.Background()

	owners := []string{"user-801", "user-802"}
	for _, o := range owners {
		if err := SetSession(ctx, rdb, o, "tok-"+o, 5*time.Second); err != nil {
			t.Fatalf("SetSession failed: %v", err)
		}
		defer DeleteSession(ctx, rdb, o)
	}

	count, err := OnlineOwnerCount(ctx, rdb)
	if err != nil {
		t.Fatalf("OnlineOwnerCount failed: %v", err)
	}
	if count < len(owners) {
		t.Errorf("expected at least %d online owners, got %d", len(owners), count)
	}
}
