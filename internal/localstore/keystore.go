package localstore

import (
	"database/sql"
	"fmt"
)

// --- Key Custody ---

// StoreKey records the key material for a private file. The key is held only
// on this device; losing it makes the ciphertext permanently unreadable.
func (d *DB) StoreKey(fileID string, key, nonce []byte, fileName, mimeType string) error {
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO key_entries (file_id, key, nonce, salt, file_name, mime_type, password_protected)
		 VALUES (?, ?, ?, NULL, ?, ?, 0)`,
		fileID, key, nonce, fileName, mimeType,
	)
	if err != nil {
		return fmt.Errorf("store key: %w", err)
	}
	return nil
}

// StorePasswordMeta records the salt and nonce for a password-protected file.
// The key itself is never stored; it is only derivable from a supplied
// password plus this salt.
func (d *DB) StorePasswordMeta(fileID string, salt, nonce []byte, fileName, mimeType string) error {
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO key_entries (file_id, key, nonce, salt, file_name, mime_type, password_protected)
		 VALUES (?, NULL, ?, ?, ?, ?, 1)`,
		fileID, nonce, salt, fileName, mimeType,
	)
	if err != nil {
		return fmt.Errorf("store password meta: %w", err)
	}
	return nil
}

// GetKey retrieves the key entry for a storage identifier. A missing entry
// returns (nil, nil): "cannot decrypt locally" is not an error, and is
// distinct from "file does not exist".
func (d *DB) GetKey(fileID string) (*KeyEntry, error) {
	e := &KeyEntry{}
	err := d.db.QueryRow(
		`SELECT file_id, key, nonce, salt, file_name, mime_type, password_protected
		 FROM key_entries WHERE file_id = ?`, fileID,
	).Scan(&e.FileID, &e.Key, &e.Nonce, &e.Salt, &e.FileName, &e.MimeType, &e.IsPasswordProtected)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}
	return e, nil
}

// HasKey reports whether a key entry exists for a storage identifier.
func (d *DB) HasKey(fileID string) (bool, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM key_entries WHERE file_id = ?`, fileID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has key: %w", err)
	}
	return n > 0, nil
}

// DeleteKey removes the key entry for a storage identifier.
func (d *DB) DeleteKey(fileID string) error {
	if _, err := d.db.Exec(`DELETE FROM key_entries WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}
