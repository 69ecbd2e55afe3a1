package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rvalente/taskspace/secrets"
	"github.com/rvalente/taskspace/storage"
)

const (
	sessionScope      = "__sessions"
	sessionRecordType = "SESSION"
	cleanupInterval   = 5 * time.Minute
)

// PersistentSessionStore stores session records in a
// storage.Repository, sealed with the secrets codec so a repository
// compromise alone does not expose CSRF tokens or pending login state.
// Sessions survive server restarts.
type PersistentSessionStore struct {
	repo     storage.Repository
	codec    *secrets.Codec
	stopOnce sync.Once
	stopCh   chan struct{}
}

var _ SessionStore = (*PersistentSessionStore)(nil)

// NewPersistentSessionStore creates a session store backed by the given
// repository. A background sweeper evicts expired records.
func NewPersistentSessionStore(repo storage.Repository, codec *secrets.Codec) *PersistentSessionStore {
	s := &PersistentSessionStore{
		repo:   repo,
		codec:  codec,
		stopCh: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Close stops the background cleanup goroutine.
func (s *PersistentSessionStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *PersistentSessionStore) Get(key string) (SessionRecord, bool, error) {
	rec, err := s.repo.Get(sessionScope, sessionRecordType, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrScopeNotFound) {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, fmt.Errorf("reading session record: %w", err)
	}
	record, err := s.decode(rec.Data)
	if err != nil {
		// Undecryptable or corrupt entry: the codec key changed or the
		// record was tampered with. Treat as absent and remove it.
		_ = s.repo.Delete(sessionScope, sessionRecordType, key)
		return SessionRecord{}, false, nil
	}
	if record.Expired(time.Now()) {
		_ = s.repo.Delete(sessionScope, sessionRecordType, key)
		return SessionRecord{}, false, nil
	}
	return record, true, nil
}

func (s *PersistentSessionStore) Put(key string, record SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}
	sealed, err := s.codec.Encrypt(data)
	if err != nil {
		return fmt.Errorf("sealing session record: %w", err)
	}
	if err := s.repo.Put(sessionScope, sessionRecordType, key, []byte(sealed)); err != nil {
		return fmt.Errorf("writing session record: %w", err)
	}
	return nil
}

func (s *PersistentSessionStore) Delete(key string) error {
	err := s.repo.Delete(sessionScope, sessionRecordType, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrScopeNotFound) {
		return fmt.Errorf("deleting session record: %w", err)
	}
	return nil
}

func (s *PersistentSessionStore) decode(data []byte) (SessionRecord, error) {
	plain, err := s.codec.Decrypt(string(data))
	if err != nil {
		return SessionRecord{}, err
	}
	var record SessionRecord
	if err := json.Unmarshal(plain, &record); err != nil {
		return SessionRecord{}, err
	}
	return record, nil
}

// cleanupLoop periodically removes expired session records.
func (s *PersistentSessionStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *PersistentSessionStore) sweepExpired() {
	keys, err := s.repo.List(sessionScope, sessionRecordType)
	if err != nil {
		return
	}
	now := time.Now()
	for _, key := range keys {
		rec, err := s.repo.Get(sessionScope, sessionRecordType, key)
		if err != nil {
			continue
		}
		record, err := s.decode(rec.Data)
		if err != nil {
			_ = s.repo.Delete(sessionScope, sessionRecordType, key)
			continue
		}
		if record.Expired(now) {
			_ = s.repo.Delete(sessionScope, sessionRecordType, key)
		}
	}
}
