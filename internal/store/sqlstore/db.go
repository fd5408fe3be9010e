// Package sqlstore implements the store interfaces over database/sql for
// Postgres (pgx) and SQLite (modernc). Queries are written once with $N
// placeholders and rebound for SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder syntax and migration driver.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB wraps *sql.DB and rewrites $N placeholders for the active dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// OpenDB opens a connection pool for the given dialect. For SQLite, dsn is a
// file path or ":memory:".
func OpenDB(dialect Dialect, dsn string) (*DB, error) {
	switch dialect {
	case DialectPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres DSN is empty (set DATABASE_URL)")
		}
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &DB{DB: db, Dialect: dialect}, nil

	case DialectSQLite:
		if dsn == "" {
			dsn = "waibon.db"
		}
		conn := dsn
		if dsn != ":memory:" {
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return nil, fmt.Errorf("create sqlite dir: %w", err)
				}
			}
			conn = "file:" + dsn + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
		}
		db, err := sql.Open("sqlite", conn)
		if err != nil {
			return nil, err
		}
		if dsn == ":memory:" {
			// every pooled connection would otherwise get its own empty database
			db.SetMaxOpenConns(1)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &DB{DB: db, Dialect: dialect}, nil
	}
	return nil, fmt.Errorf("unknown database dialect %q", dialect)
}

func (db *DB) rebind(query string) string {
	if db.Dialect != DialectSQLite {
		return query
	}
	return Rebind(query)
}

// Rebind rewrites $N placeholders to SQLite's ?N form.
func Rebind(query string) string {
	if !strings.Contains(query, "$") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.DB.ExecContext(ctx, db.rebind(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.DB.QueryContext(ctx, db.rebind(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, db.rebind(query), args...)
}

// Tx is a transaction with the same placeholder rewriting as DB.
type Tx struct {
	*sql.Tx
	db *DB
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx, db: db}, nil
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.Tx.ExecContext(ctx, tx.db.rebind(query), args...)
}

func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.Tx.QueryRowContext(ctx, tx.db.rebind(query), args...)
}

// nowUTC keeps SQLite's text timestamps lexicographically ordered.
func nowUTC() time.Time {
	return time.Now().UTC()
}
