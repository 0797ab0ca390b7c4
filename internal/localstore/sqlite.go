package localstore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/halcyon-systems/driftvault/internal/crypto"
)

// DB wraps a sql.DB connection to the device-local SQLite database. It is the
// single authoritative store for both key custody records and the content
// index; there are no parallel caches to drift out of sync.
type DB struct {
	db *sql.DB
}

// NewDB opens (or creates) a SQLite database at path and runs schema migrations.
func NewDB(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	// Serialize writers. The store is per-device and single-writer-at-a-time;
	// a single connection keeps sqlite's own locking out of the picture.
	sqlDB.SetMaxOpenConns(1)

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// migrate creates all required tables if they do not already exist.
func (d *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS key_entries (
    file_id TEXT PRIMARY KEY,
    key BLOB,
    nonce BLOB NOT NULL,
    salt BLOB,
    file_name TEXT NOT NULL,
    mime_type TEXT,
    password_protected INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS content_index (
    content_hash TEXT PRIMARY KEY,
    storage_id TEXT NOT NULL,
    blinded_hash TEXT NOT NULL,
    visibility TEXT NOT NULL,
    ref_count INTEGER NOT NULL DEFAULT 1,
    size INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    last_accessed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS device (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    blind_secret BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_content_index_storage ON content_index(storage_id);
CREATE INDEX IF NOT EXISTS idx_content_index_blinded ON content_index(blinded_hash);`
	_, err := d.db.Exec(schema)
	return err
}

// BlindSecret returns the per-device blinding secret, creating and persisting
// one on first use.
func (d *DB) BlindSecret() ([]byte, error) {
	var secret []byte
	err := d.db.QueryRow(`SELECT blind_secret FROM device WHERE id = 1`).Scan(&secret)
	if err == nil {
		return secret, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("get blind secret: %w", err)
	}

	secret = crypto.NewBlindSecret()
	if _, err := d.db.Exec(`INSERT INTO device (id, blind_secret) VALUES (1, ?)`, secret); err != nil {
		return nil, fmt.Errorf("store blind secret: %w", err)
	}
	return secret, nil
}
