package localstore

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Content Index ---

// StoreEntry inserts a new content index entry. RefCount defaults to 1 when
// unset; CreatedAt and LastAccessedAt default to now.
func (d *DB) StoreEntry(e *IndexEntry) error {
	if e.RefCount == 0 {
		e.RefCount = 1
	}
	now := time.Now().Unix()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	if e.LastAccessedAt == 0 {
		e.LastAccessedAt = now
	}

	_, err := d.db.Exec(
		`INSERT INTO content_index
		 (content_hash, storage_id, blinded_hash, visibility, ref_count, size, created_at, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ContentHash, e.StorageID, e.BlindedHash, e.Visibility,
		e.RefCount, e.Size, e.CreatedAt, e.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("store index entry: %w", err)
	}
	return nil
}

// Lookup finds an entry by content hash. Lookups never delete; a missing
// entry returns (nil, nil).
func (d *DB) Lookup(contentHash string) (*IndexEntry, error) {
	return d.lookupWhere("content_hash = ?", contentHash)
}

// LookupByBlindedHash finds an entry by its blinded hash, for matching server
// dedup responses back to local state.
func (d *DB) LookupByBlindedHash(blindedHash string) (*IndexEntry, error) {
	return d.lookupWhere("blinded_hash = ?", blindedHash)
}

// LookupByStorageID finds an entry by its storage identifier.
func (d *DB) LookupByStorageID(storageID string) (*IndexEntry, error) {
	return d.lookupWhere("storage_id = ?", storageID)
}

func (d *DB) lookupWhere(where string, arg any) (*IndexEntry, error) {
	e := &IndexEntry{}
	err := d.db.QueryRow(
		`SELECT content_hash, storage_id, blinded_hash, visibility, ref_count, size, created_at, last_accessed_at
		 FROM content_index WHERE `+where, arg,
	).Scan(&e.ContentHash, &e.StorageID, &e.BlindedHash, &e.Visibility,
		&e.RefCount, &e.Size, &e.CreatedAt, &e.LastAccessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup index entry: %w", err)
	}
	return e, nil
}

// IncrementRef adds one reference to a content hash and returns the new count.
func (d *DB) IncrementRef(contentHash string) (int, error) {
	res, err := d.db.Exec(
		`UPDATE content_index SET ref_count = ref_count + 1, last_accessed_at = ?
		 WHERE content_hash = ?`,
		time.Now().Unix(), contentHash,
	)
	if err != nil {
		return 0, fmt.Errorf("increment ref: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("increment ref: no entry for %s", contentHash)
	}

	var count int
	if err := d.db.QueryRow(
		`SELECT ref_count FROM content_index WHERE content_hash = ?`, contentHash,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment ref: %w", err)
	}
	return count, nil
}

// DecrementRef removes one reference and returns the new count. The count
// never goes below zero; at exactly zero the entry is removed. Refcount
// mutation is the only path to entry deletion.
func (d *DB) DecrementRef(contentHash string) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("decrement ref: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRow(
		`SELECT ref_count FROM content_index WHERE content_hash = ?`, contentHash,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("decrement ref: %w", err)
	}

	count--
	if count <= 0 {
		if _, err := tx.Exec(`DELETE FROM content_index WHERE content_hash = ?`, contentHash); err != nil {
			return 0, fmt.Errorf("decrement ref: %w", err)
		}
		count = 0
	} else {
		if _, err := tx.Exec(
			`UPDATE content_index SET ref_count = ? WHERE content_hash = ?`, count, contentHash,
		); err != nil {
			return 0, fmt.Errorf("decrement ref: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("decrement ref: %w", err)
	}
	return count, nil
}

// Touch updates last_accessed_at for a content hash.
func (d *DB) Touch(contentHash string) error {
	_, err := d.db.Exec(
		`UPDATE content_index SET last_accessed_at = ? WHERE content_hash = ?`,
		time.Now().Unix(), contentHash,
	)
	if err != nil {
		return fmt.Errorf("touch index entry: %w", err)
	}
	return nil
}

// ListEntries returns all index entries, newest first.
func (d *DB) ListEntries() ([]IndexEntry, error) {
	rows, err := d.db.Query(
		`SELECT content_hash, storage_id, blinded_hash, visibility, ref_count, size, created_at, last_accessed_at
		 FROM content_index ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list index entries: %w", err)
	}
	defer rows.Close()

	var entries []IndexEntry
	for rows.Next() {
		var e IndexEntry
		if err := rows.Scan(&e.ContentHash, &e.StorageID, &e.BlindedHash, &e.Visibility,
			&e.RefCount, &e.Size, &e.CreatedAt, &e.LastAccessedAt); err != nil {
			return nil, fmt.Errorf("scan index entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
