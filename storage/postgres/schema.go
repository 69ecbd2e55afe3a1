package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	scope       TEXT   NOT NULL,
	record_type TEXT   NOT NULL,
	record_id   TEXT   NOT NULL,
	data        BYTEA  NOT NULL,
	version     BIGINT NOT NULL,
	PRIMARY KEY (scope, record_type, record_id)
);
`

// EnsureSchema creates the records table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating records table: %w", err)
	}
	return nil
}
