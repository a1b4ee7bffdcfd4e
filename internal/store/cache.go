package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLCache keeps cached payloads in the cache table.
type SQLCache struct {
	db *DB
}

func NewSQLCache(db *DB) *SQLCache {
	return &SQLCache{db: db}
}

func (c *SQLCache) Get(ctx context.Context, key string) ([]byte, error) {
	type cacheRow struct {
		ExpiresAt sql.NullTime `db:"expires_at"`
		Data      []byte       `db:"data"`
	}

	var row cacheRow
	err := c.db.GetContext(ctx, &row, c.db.Rebind("SELECT data, expires_at FROM cache WHERE key = ?"), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if row.ExpiresAt.Valid && time.Now().UTC().After(row.ExpiresAt.Time) {
		_, _ = c.db.ExecContext(ctx, c.db.Rebind("DELETE FROM cache WHERE key = ?"), key)
		return nil, nil
	}

	return row.Data, nil
}

func (c *SQLCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}

	_, err := c.db.ExecContext(ctx, c.db.Rebind(`
		INSERT INTO cache (key, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`), key, data, expiresAt)
	return err
}
