// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/rvalente/taskspace/storage"
)

// Store implements storage.Repository backed by a BBolt database.
// Each scope maps to a top-level bucket; records are stored as JSON
// under "recordType:recordID" keys.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

type storedRecord struct {
	Data    []byte `json:"data"`
	Version uint64 `json:"version"`
}

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and
// returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func makeKey(recordType, recordID string) []byte {
	return []byte(recordType + ":" + recordID)
}

func getInBucket(b *bbolt.Bucket, recordType, recordID string) (*storage.Record, error) {
	data := b.Get(makeKey(recordType, recordID))
	if data == nil {
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	var rec storedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding record %s/%s: %w", recordType, recordID, err)
	}
	return &storage.Record{Data: rec.Data, Version: rec.Version}, nil
}

func putInBucket(b *bbolt.Bucket, recordType, recordID string, version uint64, data []byte) error {
	encoded, err := json.Marshal(storedRecord{Data: data, Version: version})
	if err != nil {
		return err
	}
	return b.Put(makeKey(recordType, recordID), encoded)
}

func (s *Store) Get(scope, recordType, recordID string) (*storage.Record, error) {
	var rec *storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scope))
		if b == nil {
			return fmt.Errorf("%s: %w", scope, storage.ErrScopeNotFound)
		}
		var err error
		rec, err = getInBucket(b, recordType, recordID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) Put(scope, recordType, recordID string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return err
		}
		var version uint64 = 1
		if existing, err := getInBucket(b, recordType, recordID); err == nil {
			version = existing.Version + 1
		}
		return putInBucket(b, recordType, recordID, version, data)
	})
}

func (s *Store) PutCAS(scope, recordType, recordID string, expectedVersion uint64, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return err
		}
		return putCASInBucket(b, recordType, recordID, expectedVersion, data)
	})
}

func putCASInBucket(b *bbolt.Bucket, recordType, recordID string, expectedVersion uint64, data []byte) error {
	existing, err := getInBucket(b, recordType, recordID)
	if expectedVersion == 0 {
		if err == nil {
			return storage.ErrCASFailed
		}
	} else {
		if err != nil || existing.Version != expectedVersion {
			return storage.ErrCASFailed
		}
	}
	return putInBucket(b, recordType, recordID, expectedVersion+1, data)
}

func (s *Store) Delete(scope, recordType, recordID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scope))
		if b == nil {
			return fmt.Errorf("%s: %w", scope, storage.ErrScopeNotFound)
		}
		key := makeKey(recordType, recordID)
		if b.Get(key) == nil {
			return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
		}
		return b.Delete(key)
	})
}

func (s *Store) List(scope, recordType string) ([]string, error) {
	var ids []string
	prefix := []byte(recordType + ":")
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scope))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, string(k[len(prefix):]))
		}
		return nil
	})
	return ids, err
}

func (s *Store) Batch(scope string, fn func(tx storage.BatchTx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return err
		}
		return fn(&boltBatchTx{bucket: b})
	})
}

type boltBatchTx struct {
	bucket *bbolt.Bucket
}

var _ storage.BatchTx = (*boltBatchTx)(nil)

func (btx *boltBatchTx) Get(recordType, recordID string) (*storage.Record, error) {
	return getInBucket(btx.bucket, recordType, recordID)
}

func (btx *boltBatchTx) Put(recordType, recordID string, data []byte) error {
	var version uint64 = 1
	if existing, err := getInBucket(btx.bucket, recordType, recordID); err == nil {
		version = existing.Version + 1
	}
	return putInBucket(btx.bucket, recordType, recordID, version, data)
}

func (btx *boltBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, data []byte) error {
	return putCASInBucket(btx.bucket, recordType, recordID, expectedVersion, data)
}

func (btx *boltBatchTx) Delete(recordType, recordID string) error {
	key := makeKey(recordType, recordID)
	if btx.bucket.Get(key) == nil {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return btx.bucket.Delete(key)
}
