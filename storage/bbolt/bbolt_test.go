package bbolt

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/rvalente/taskspace/storage"
	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "taskspace-test-*.db")
	if err != nil {
		t.Fatalf("could not create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBBoltStorage(t *testing.T) {
	s := NewRepository(newTestDB(t))
	scope := "s1"
	recordType := "TODO"
	recordID := "t1"

	t.Run("PutGet", func(t *testing.T) {
		if err := s.Put(scope, recordType, recordID, []byte("payload")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := s.Get(scope, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got.Data, []byte("payload")) {
			t.Errorf("expected %q, got %q", "payload", got.Data)
		}
		if got.Version != 1 {
			t.Errorf("expected version 1, got %d", got.Version)
		}
	})

	t.Run("PutIncrementsVersion", func(t *testing.T) {
		if err := s.Put(scope, recordType, recordID, []byte("payload2")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(scope, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Version != 2 {
			t.Errorf("expected version 2 after overwrite, got %d", got.Version)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		if _, err := s.Get("no-such-scope", recordType, recordID); !errors.Is(err, storage.ErrScopeNotFound) {
			t.Errorf("expected ErrScopeNotFound, got %v", err)
		}
		if _, err := s.Get(scope, recordType, "no-such-id"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		s.Put(scope, recordType, "t2", []byte("x"))
		ids, err := s.List(scope, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 IDs, got %d", len(ids))
		}
	})

	t.Run("PutCASCreateOnly", func(t *testing.T) {
		if err := s.PutCAS(scope, recordType, "cas1", 0, []byte("v1")); err != nil {
			t.Fatalf("PutCAS (new) failed: %v", err)
		}
		if err := s.PutCAS(scope, recordType, "cas1", 0, []byte("v1")); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("PutCASVersionMatch", func(t *testing.T) {
		if err := s.PutCAS(scope, recordType, "cas1", 1, []byte("v2")); err != nil {
			t.Fatalf("PutCAS update failed: %v", err)
		}
		if err := s.PutCAS(scope, recordType, "cas1", 1, []byte("v3")); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed on stale version, got %v", err)
		}
		got, err := s.Get(scope, recordType, "cas1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got.Data, []byte("v2")) {
			t.Errorf("stale write must not land, got %q", got.Data)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s.Put(scope, recordType, "del1", []byte("x"))
		if err := s.Delete(scope, recordType, "del1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get(scope, recordType, "del1"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		err := s.Batch(scope, func(tx storage.BatchTx) error {
			if err := tx.Put(recordType, "b1", []byte("one")); err != nil {
				return err
			}
			return tx.PutCAS(recordType, "b2", 0, []byte("two"))
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}
		if _, err := s.Get(scope, recordType, "b1"); err != nil {
			t.Error("record b1 should exist after batch")
		}

		err = s.Batch(scope, func(tx storage.BatchTx) error {
			tx.Put(recordType, "b3", []byte("three"))
			return fmt.Errorf("simulated error")
		})
		if err == nil {
			t.Error("expected error from Batch")
		}
		if _, err := s.Get(scope, recordType, "b3"); err == nil {
			t.Error("record b3 should NOT exist after failed batch")
		}
	})

	t.Run("SurvivesReopen", func(t *testing.T) {
		dir := t.TempDir()
		path := dir + "/reopen.db"
		s1, err := NewRepositoryFromFile(path, nil)
		if err != nil {
			t.Fatalf("NewRepositoryFromFile: %v", err)
		}
		if err := s1.Put("sc", "T", "persist", []byte("kept")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		s1.Close()

		s2, err := NewRepositoryFromFile(path, nil)
		if err != nil {
			t.Fatalf("NewRepositoryFromFile (reopen): %v", err)
		}
		defer s2.Close()
		got, err := s2.Get("sc", "T", "persist")
		if err != nil {
			t.Fatalf("Get after reopen: %v", err)
		}
		if !bytes.Equal(got.Data, []byte("kept")) {
			t.Errorf("expected %q, got %q", "kept", got.Data)
		}
	})
}
