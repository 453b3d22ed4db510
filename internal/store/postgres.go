package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
)

// PostgresTable persists a key→value table as a two-column Postgres table,
// one row per account key. Concurrent writers are serialized by the database.
type PostgresTable struct {
	db    *sql.DB
	table string
}

var _ Table = (*PostgresTable)(nil)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// NewPostgresTable constructs a table stored under the given table name. The
// name is interpolated into DDL/DML, so it is restricted to a safe identifier.
func NewPostgresTable(db *sql.DB, table string) (*PostgresTable, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresTable{db: db, table: table}, nil
}

// Init creates the backing table when it does not exist yet.
func (t *PostgresTable) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			account_key TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, t.table)

	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", t.table, err)
	}
	return nil
}

func (t *PostgresTable) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE account_key = $1`, t.table)

	var value string
	err := t.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s[%s]: %w", t.table, key, err)
	}

	return value, true, nil
}

func (t *PostgresTable) Set(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (account_key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account_key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, t.table)

	if _, err := t.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set %s[%s]: %w", t.table, key, err)
	}
	return nil
}
