package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskboard/api/internal/store"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	s := miniredis.RunT(t)
	redisStore, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { redisStore.Close() })
	return redisStore
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	redisStore := setupTestRedis(t)
	ctx := context.Background()

	user := store.User{ID: "usr_123", DisplayName: "Pat", Email: "pat@example.test"}
	if err := redisStore.SaveRefreshSession(ctx, "hash-1", user, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	got, err := redisStore.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if got.ID != user.ID || got.DisplayName != user.DisplayName || got.Email != user.Email {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestLookupUnknownToken(t *testing.T) {
	redisStore := setupTestRedis(t)

	_, err := redisStore.LookupRefreshSession(context.Background(), "no-such-hash")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	redisStore := setupTestRedis(t)
	ctx := context.Background()

	user := store.User{ID: "usr_123", DisplayName: "Pat"}
	if err := redisStore.SaveRefreshSession(ctx, "hash-1", user, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if err := redisStore.RevokeRefreshSession(ctx, "hash-1"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := redisStore.LookupRefreshSession(ctx, "hash-1"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected revoked token to be gone, got %v", err)
	}
}

func TestRevokeUnknownTokenIsNoop(t *testing.T) {
	redisStore := setupTestRedis(t)
	if err := redisStore.RevokeRefreshSession(context.Background(), "no-such-hash"); err != nil {
		t.Fatalf("revoking an unknown token should not fail: %v", err)
	}
}
