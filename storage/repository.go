// Package storage provides the versioned record storage abstraction
// shared by the session store and the entity stores.
package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrScopeNotFound is returned when a storage scope does not exist.
	ErrScopeNotFound = errors.New("scope not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)

// Record is a stored value together with its storage version. The
// version starts at 1 on create and increments on every write; it is
// the token compared by PutCAS.
type Record struct {
	Data    []byte
	Version uint64
}

// BatchTx provides record operations within a single atomic
// transaction. The scope is fixed when the batch is opened, so the
// methods do not take it.
type BatchTx interface {
	Get(recordType, recordID string) (*Record, error)
	Put(recordType, recordID string, data []byte) error
	// PutCAS writes only if the current version equals expectedVersion.
	// expectedVersion 0 means the record must not exist yet.
	PutCAS(recordType, recordID string, expectedVersion uint64, data []byte) error
	Delete(recordType, recordID string) error
}

// Repository defines the interface for versioned record storage.
// Records are addressed by (scope, recordType, recordID); scopes map
// to tenants (a space, the account namespace, the session namespace).
type Repository interface {
	Get(scope, recordType, recordID string) (*Record, error)
	Put(scope, recordType, recordID string, data []byte) error
	PutCAS(scope, recordType, recordID string, expectedVersion uint64, data []byte) error
	Delete(scope, recordType, recordID string) error
	List(scope, recordType string) ([]string, error)
	// Batch runs fn inside one atomic transaction scoped to scope.
	// Any error from fn aborts the transaction.
	Batch(scope string, fn func(tx BatchTx) error) error
}
