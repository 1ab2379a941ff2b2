package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"grammardesk/internal/store"
)

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*store.PostgresStore)(nil)
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	rs, err := NewRedisStore(context.Background(), "redis://"+s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return rs, s
}

func testSession(hash string, ttl time.Duration) store.Session {
	return store.Session{
		TokenHash:   hash,
		Username:    "kim",
		DisplayName: "김검토",
		Role:        "reviewer",
		ExpiresAt:   time.Now().Add(ttl),
	}
}

func TestNewRedisStore(t *testing.T) {
	rs, _ := setupTestRedis(t)
	if err := rs.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), "not a url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestSaveAndLookupSession(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveSession(ctx, testSession("hash-1", time.Hour)); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	got, err := rs.LookupSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupSession() error = %v", err)
	}
	if got.Username != "kim" || got.Role != "reviewer" || got.DisplayName != "김검토" || got.TokenHash != "hash-1" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveSession(ctx, testSession("hash-2", time.Minute)); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, err := rs.LookupSession(ctx, "hash-2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("LookupSession() error = %v, want ErrNotFound", err)
	}
}

func TestSaveExpiredSessionFails(t *testing.T) {
	rs, _ := setupTestRedis(t)
	if err := rs.SaveSession(context.Background(), testSession("hash-3", -time.Minute)); err == nil {
		t.Fatal("expected error for expired session")
	}
}

func TestRevokeSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveSession(ctx, testSession("hash-4", time.Hour)); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if !s.Exists("grammardesk:session:hash-4") {
		t.Fatal("expected key in redis")
	}
	if err := rs.RevokeSession(ctx, "hash-4"); err != nil {
		t.Fatalf("RevokeSession() error = %v", err)
	}
	if _, err := rs.LookupSession(ctx, "hash-4"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("LookupSession() error = %v, want ErrNotFound", err)
	}
}

func TestLookupCorruptSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	if err := s.Set("grammardesk:session:bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := rs.LookupSession(context.Background(), "bad")
	if err == nil || errors.Is(err, store.ErrNotFound) {
		t.Fatalf("LookupSession() error = %v, want decode error", err)
	}
}

func TestPingAfterServerClose(t *testing.T) {
	rs, s := setupTestRedis(t)
	s.Close()
	if err := rs.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail after server close")
	}
}

func TestMemoryStore(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	clock := time.Now()
	ms.now = func() time.Time { return clock }

	session := testSession("m1", time.Hour)
	session.ExpiresAt = clock.Add(time.Hour)
	if err := ms.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if _, err := ms.LookupSession(ctx, "m1"); err != nil {
		t.Fatalf("LookupSession() error = %v", err)
	}

	clock = clock.Add(2 * time.Hour)
	if _, err := ms.LookupSession(ctx, "m1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired LookupSession() error = %v", err)
	}

	if err := ms.SaveSession(ctx, store.Session{TokenHash: "m2", ExpiresAt: clock.Add(time.Hour)}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if err := ms.RevokeSession(ctx, "m2"); err != nil {
		t.Fatalf("RevokeSession() error = %v", err)
	}
	if _, err := ms.LookupSession(ctx, "m2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("revoked LookupSession() error = %v", err)
	}
}
