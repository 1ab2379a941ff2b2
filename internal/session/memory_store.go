package session

import (
	"context"
	"sync"
	"time"

	"grammardesk/internal/store"
)

// MemoryStore is a single-process registry used when neither Redis nor
// Postgres is configured. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]store.Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]store.Session{}, now: time.Now}
}

func (s *MemoryStore) SaveSession(_ context.Context, session store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.TokenHash] = session
	return nil
}

func (s *MemoryStore) LookupSession(_ context.Context, tokenHash string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[tokenHash]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	if !s.now().Before(session.ExpiresAt) {
		delete(s.sessions, tokenHash)
		return store.Session{}, store.ErrNotFound
	}
	return session, nil
}

func (s *MemoryStore) RevokeSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
