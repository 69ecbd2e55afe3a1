// Package memory provides a thread-safe in-memory implementation of
// storage.Repository. Suitable for testing, demos, and single-process
// use cases.
package memory

import (
	"fmt"
	"sync"

	"github.com/rvalente/taskspace/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.Record
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string]*storage.Record)}
}

func makeKey(recordType, recordID string) string {
	return recordType + ":" + recordID
}

func cloneRecord(rec *storage.Record) *storage.Record {
	if rec == nil {
		return nil
	}
	return &storage.Record{
		Data:    append([]byte(nil), rec.Data...),
		Version: rec.Version,
	}
}

func (r *Repository) Get(scope, recordType, recordID string) (*storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(scope, recordType, recordID)
}

func (r *Repository) getLocked(scope, recordType, recordID string) (*storage.Record, error) {
	records, ok := r.data[scope]
	if !ok {
		return nil, fmt.Errorf("%s: %w", scope, storage.ErrScopeNotFound)
	}
	rec, ok := records[makeKey(recordType, recordID)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return cloneRecord(rec), nil
}

func (r *Repository) Put(scope, recordType, recordID string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putLocked(scope, recordType, recordID, data)
}

func (r *Repository) putLocked(scope, recordType, recordID string, data []byte) error {
	if _, ok := r.data[scope]; !ok {
		r.data[scope] = make(map[string]*storage.Record)
	}
	key := makeKey(recordType, recordID)
	var version uint64 = 1
	if existing, ok := r.data[scope][key]; ok {
		version = existing.Version + 1
	}
	r.data[scope][key] = &storage.Record{
		Data:    append([]byte(nil), data...),
		Version: version,
	}
	return nil
}

func (r *Repository) PutCAS(scope, recordType, recordID string, expectedVersion uint64, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putCASLocked(scope, recordType, recordID, expectedVersion, data)
}

func (r *Repository) putCASLocked(scope, recordType, recordID string, expectedVersion uint64, data []byte) error {
	if _, ok := r.data[scope]; !ok {
		r.data[scope] = make(map[string]*storage.Record)
	}
	key := makeKey(recordType, recordID)
	existing, ok := r.data[scope][key]
	if expectedVersion == 0 {
		if ok {
			return storage.ErrCASFailed
		}
	} else {
		if !ok || existing.Version != expectedVersion {
			return storage.ErrCASFailed
		}
	}
	r.data[scope][key] = &storage.Record{
		Data:    append([]byte(nil), data...),
		Version: expectedVersion + 1,
	}
	return nil
}

func (r *Repository) Delete(scope, recordType, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(scope, recordType, recordID)
}

func (r *Repository) deleteLocked(scope, recordType, recordID string) error {
	records, ok := r.data[scope]
	if !ok {
		return fmt.Errorf("%s: %w", scope, storage.ErrScopeNotFound)
	}
	key := makeKey(recordType, recordID)
	if _, ok := records[key]; !ok {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	delete(records, key)
	return nil
}

func (r *Repository) List(scope, recordType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	records, ok := r.data[scope]
	if !ok {
		return nil, nil
	}
	prefix := recordType + ":"
	for key := range records {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			ids = append(ids, key[len(prefix):])
		}
	}
	return ids, nil
}

// Batch runs fn under the repository lock. A failed fn rolls the scope
// back to its pre-batch contents.
func (r *Repository) Batch(scope string, fn func(tx storage.BatchTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Snapshot the scope so a failed batch can be rolled back.
	var snapshot map[string]*storage.Record
	if records, ok := r.data[scope]; ok {
		snapshot = make(map[string]*storage.Record, len(records))
		for k, v := range records {
			snapshot[k] = cloneRecord(v)
		}
	}

	btx := &memBatchTx{repo: r, scope: scope}
	if err := fn(btx); err != nil {
		if snapshot == nil {
			delete(r.data, scope)
		} else {
			r.data[scope] = snapshot
		}
		return err
	}
	return nil
}

type memBatchTx struct {
	repo  *Repository
	scope string
}

var _ storage.BatchTx = (*memBatchTx)(nil)

func (btx *memBatchTx) Get(recordType, recordID string) (*storage.Record, error) {
	return btx.repo.getLocked(btx.scope, recordType, recordID)
}

func (btx *memBatchTx) Put(recordType, recordID string, data []byte) error {
	return btx.repo.putLocked(btx.scope, recordType, recordID, data)
}

func (btx *memBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, data []byte) error {
	return btx.repo.putCASLocked(btx.scope, recordType, recordID, expectedVersion, data)
}

func (btx *memBatchTx) Delete(recordType, recordID string) error {
	return btx.repo.deleteLocked(btx.scope, recordType, recordID)
}
