// Package session keeps the registry of active sign-ins.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"grammardesk/internal/store"
)

// Store is implemented by RedisStore, MemoryStore and store.PostgresStore.
// LookupSession returns store.ErrNotFound for unknown, expired or revoked
// sessions.
type Store interface {
	SaveSession(ctx context.Context, session store.Session) error
	LookupSession(ctx context.Context, tokenHash string) (store.Session, error)
	RevokeSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

// RedisStore keeps sessions as JSON values that expire with the session.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore parses redisURL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "grammardesk:session:",
	}
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

func (s *RedisStore) SaveSession(ctx context.Context, session store.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("save session: already expired at %s", session.ExpiresAt.Format(time.RFC3339))
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.TokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) LookupSession(ctx context.Context, tokenHash string) (store.Session, error) {
	raw, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return store.Session{}, store.ErrNotFound
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("lookup session: %w", err)
	}

	var session store.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return store.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	session.TokenHash = tokenHash
	return session, nil
}

func (s *RedisStore) RevokeSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
