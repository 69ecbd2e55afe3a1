package api

import (
	"sync"
	"time"
)

// MemorySessionStore is a thread-safe in-memory SessionStore.
// Sessions are lost on server restart.
type MemorySessionStore struct {
	mu   sync.RWMutex
	data map[string]SessionRecord
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{data: make(map[string]SessionRecord)}
}

func (s *MemorySessionStore) Get(key string) (SessionRecord, bool, error) {
	s.mu.RLock()
	record, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return SessionRecord{}, false, nil
	}
	if record.Expired(time.Now()) {
		_ = s.Delete(key)
		return SessionRecord{}, false, nil
	}
	return record, true, nil
}

func (s *MemorySessionStore) Put(key string, record SessionRecord) error {
	s.mu.Lock()
	s.data[key] = record
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}
