package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// MemoryStore is an in-process Store. Entries expire ttl after their last write.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]memoryEntry
	ttl  time.Duration
	nowF func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]memoryEntry),
		ttl:  ttl,
		nowF: time.Now,
	}
}

func memoryKey(sessionID string, key Key) string {
	return sessionID + "|" + string(key)
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string, key Key) ([]byte, error) {
	k := memoryKey(sessionID, key)

	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	if e.expired(s.nowF()) {
		s.mu.Lock()
		if cur, ok := s.m[k]; ok && cur.expired(s.nowF()) {
			delete(s.m, k)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, sessionID string, key Key, value []byte) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if s.ttl > 0 {
		e.expiresAt = s.nowF().Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[memoryKey(sessionID, key)] = e
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, sessionID string, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, memoryKey(sessionID, key))
	return nil
}
