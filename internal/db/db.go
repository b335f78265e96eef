// Package db wraps the embedded SQLite store that backs the pipeline's
// KV-shaped persisted state (sessions, analytics counters, image blobs).
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the SQLite-backed KV store.
type DB struct {
	conn *sql.DB
}

// Open creates a new DB connection and runs all pending migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	migrationsFS, err := fs.Sub(MigrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrationsFS)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}

	if _, err := provider.Up(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for use by other packages if needed.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// --- Generic KV methods ---
//
// Every persisted key in the spec's layout (session:{id}, event:{sessionId}:{ts},
// daily:{yyyy-mm-dd}, recent-queries, analysis:latest, page-analysis:{url})
// is stored as a JSON value under one of these rows. A nil expiresAt means
// the key never expires on its own (callers still overwrite it on every
// write, matching the spec's "last write wins" token-cache model).

// Put upserts a key with a JSON value and an optional TTL.
func (d *DB) Put(key string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	var expiresAt *string
	if ttl > 0 {
		s := now.Add(ttl).Format(time.RFC3339)
		expiresAt = &s
	}
	_, err := d.conn.Exec(
		`INSERT INTO kv (key, value, expires_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		key, value, expiresAt, now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("kv put %q: %w", key, err)
	}
	return nil
}

// Get returns the value for key, or (nil, false) if absent or expired.
func (d *DB) Get(key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt *string
	err := d.conn.QueryRow(`SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %q: %w", key, err)
	}
	if expiresAt != nil {
		t, err := time.Parse(time.RFC3339, *expiresAt)
		if err == nil && time.Now().UTC().After(t) {
			return nil, false, nil
		}
	}
	return value, true, nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (d *DB) Delete(key string) error {
	_, err := d.conn.Exec(`DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

// ScanPrefix returns all non-expired keys (and values) whose key starts with prefix.
func (d *DB) ScanPrefix(prefix string) (map[string][]byte, error) {
	rows, err := d.conn.Query(
		`SELECT key, value, expires_at FROM kv WHERE key LIKE ? ORDER BY key`, prefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("kv scan %q: %w", prefix, err)
	}
	defer rows.Close() //nolint:errcheck

	now := time.Now().UTC()
	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		var expiresAt *string
		if err := rows.Scan(&key, &value, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan kv row: %w", err)
		}
		if expiresAt != nil {
			if t, err := time.Parse(time.RFC3339, *expiresAt); err == nil && now.After(t) {
				continue
			}
		}
		out[key] = value
	}
	return out, rows.Err()
}

// --- Blob methods (images/{slug}/{imageId}.png) ---

// PutBlob stores binary content under a slug/id pair, overwriting any prior content.
func (d *DB) PutBlob(slug, id string, content []byte, contentType string) error {
	_, err := d.conn.Exec(
		`INSERT INTO blobs (slug, id, content, content_type, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(slug, id) DO UPDATE SET content = excluded.content, content_type = excluded.content_type`,
		slug, id, content, contentType, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("put blob %s/%s: %w", slug, id, err)
	}
	return nil
}

// GetBlob retrieves binary content and its content type, or (nil, "", false) if absent.
func (d *DB) GetBlob(slug, id string) ([]byte, string, bool, error) {
	var content []byte
	var contentType string
	err := d.conn.QueryRow(
		`SELECT content, content_type FROM blobs WHERE slug = ? AND id = ?`, slug, id,
	).Scan(&content, &contentType)
	if err == sql.ErrNoRows {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("get blob %s/%s: %w", slug, id, err)
	}
	return content, contentType, true, nil
}
