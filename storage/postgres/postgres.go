// Package postgres implements storage.Repository backed by PostgreSQL.
//
// The records table uses a composite primary key (scope, record_type,
// record_id) that mirrors the key space used by the BBolt and in-memory
// backends. The version column carries the CAS token; compare-and-swap
// writes run as a conditional UPDATE inside a transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rvalente/taskspace/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string,
// ensures the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Get(scope, recordType, recordID string) (*storage.Record, error) {
	var rec storage.Record
	err := s.pool.QueryRow(context.Background(),
		`SELECT data, version FROM records
		 WHERE scope = $1 AND record_type = $2 AND record_id = $3`,
		scope, recordType, recordID).Scan(&rec.Data, &rec.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return &rec, nil
}

func (s *Store) Put(scope, recordType, recordID string, data []byte) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO records (scope, record_type, record_id, data, version)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (scope, record_type, record_id)
		 DO UPDATE SET data = EXCLUDED.data, version = records.version + 1`,
		scope, recordType, recordID, data)
	if err != nil {
		return fmt.Errorf("putting record: %w", err)
	}
	return nil
}

func (s *Store) PutCAS(scope, recordType, recordID string, expectedVersion uint64, data []byte) error {
	tx, err := s.pool.Begin(context.Background())
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background()) //nolint:errcheck

	if err := putCASInTx(context.Background(), tx, scope, recordType, recordID, expectedVersion, data); err != nil {
		return err
	}
	return tx.Commit(context.Background())
}

func putCASInTx(ctx context.Context, tx pgx.Tx, scope, recordType, recordID string, expectedVersion uint64, data []byte) error {
	if expectedVersion == 0 {
		tag, err := tx.Exec(ctx,
			`INSERT INTO records (scope, record_type, record_id, data, version)
			 VALUES ($1, $2, $3, $4, 1)
			 ON CONFLICT (scope, record_type, record_id) DO NOTHING`,
			scope, recordType, recordID, data)
		if err != nil {
			return fmt.Errorf("inserting record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrCASFailed
		}
		return nil
	}

	tag, err := tx.Exec(ctx,
		`UPDATE records SET data = $4, version = version + 1
		 WHERE scope = $1 AND record_type = $2 AND record_id = $3 AND version = $5`,
		scope, recordType, recordID, data, expectedVersion)
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrCASFailed
	}
	return nil
}

func (s *Store) Delete(scope, recordType, recordID string) error {
	tag, err := s.pool.Exec(context.Background(),
		`DELETE FROM records WHERE scope = $1 AND record_type = $2 AND record_id = $3`,
		scope, recordType, recordID)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) List(scope, recordType string) ([]string, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT record_id FROM records
		 WHERE scope = $1 AND record_type = $2
		 ORDER BY record_id`,
		scope, recordType)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Batch(scope string, fn func(tx storage.BatchTx) error) error {
	ctx := context.Background()
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck

	btx := &pgBatchTx{ctx: ctx, tx: pgTx, scope: scope}
	if err := fn(btx); err != nil {
		return err
	}
	return pgTx.Commit(ctx)
}

type pgBatchTx struct {
	ctx   context.Context
	tx    pgx.Tx
	scope string
}

var _ storage.BatchTx = (*pgBatchTx)(nil)

func (btx *pgBatchTx) Get(recordType, recordID string) (*storage.Record, error) {
	var rec storage.Record
	err := btx.tx.QueryRow(btx.ctx,
		`SELECT data, version FROM records
		 WHERE scope = $1 AND record_type = $2 AND record_id = $3 FOR UPDATE`,
		btx.scope, recordType, recordID).Scan(&rec.Data, &rec.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return &rec, nil
}

func (btx *pgBatchTx) Put(recordType, recordID string, data []byte) error {
	_, err := btx.tx.Exec(btx.ctx,
		`INSERT INTO records (scope, record_type, record_id, data, version)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (scope, record_type, record_id)
		 DO UPDATE SET data = EXCLUDED.data, version = records.version + 1`,
		btx.scope, recordType, recordID, data)
	if err != nil {
		return fmt.Errorf("putting record: %w", err)
	}
	return nil
}

func (btx *pgBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, data []byte) error {
	return putCASInTx(btx.ctx, btx.tx, btx.scope, recordType, recordID, expectedVersion, data)
}

func (btx *pgBatchTx) Delete(recordType, recordID string) error {
	tag, err := btx.tx.Exec(btx.ctx,
		`DELETE FROM records WHERE scope = $1 AND record_type = $2 AND record_id = $3`,
		btx.scope, recordType, recordID)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return nil
}
