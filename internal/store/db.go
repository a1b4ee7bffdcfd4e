package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type dbOps interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// DB is the relational store. Inside RunInTx the same methods run on the
// transaction instead of the pool.
type DB struct {
	dbOps
	root *sqlx.DB
	inTx bool
}

// Open connects to driver ("sqlite" or "postgres") and applies the schema.
func Open(driver, dsn string) (*DB, error) {
	if driver == "sqlite" {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if driver == "sqlite" {
		// Set pragmas for better concurrency
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(SchemaFor(driver)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{dbOps: db, root: db}, nil
}

func NewSQLiteDB(dsn string) (*DB, error) {
	return Open("sqlite", dsn)
}

// sqliteDSN turns on foreign keys and the busy timeout for every pooled
// connection, not just the first one.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(30000)"
}

// RunInTx runs fn inside a transaction, committing when fn returns nil.
// Nested calls reuse the outer transaction.
func (db *DB) RunInTx(ctx context.Context, fn func(txDB *DB) error) error {
	if db.inTx {
		return fn(db)
	}

	tx, err := db.root.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txDB := &DB{
		dbOps: tx,
		root:  db.root,
		inTx:  true,
	}

	if err := fn(txDB); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.root.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.root.Close()
}
