package localstore

import (
	"encoding/json"
	"fmt"
)

// keyBackup is the serialized key backup format.
type keyBackup struct {
	Version int        `json:"version"`
	Entries []KeyEntry `json:"entries"`
}

const backupVersion = 1

// ExportKeys serializes all private-file key entries as a JSON backup.
// Password-protected entries are excluded: their salts alone cannot recover
// anything, and including them would falsely suggest the backup restores
// those files.
func (d *DB) ExportKeys() ([]byte, error) {
	rows, err := d.db.Query(
		`SELECT file_id, key, nonce, salt, file_name, mime_type, password_protected
		 FROM key_entries WHERE password_protected = 0`,
	)
	if err != nil {
		return nil, fmt.Errorf("export keys: %w", err)
	}
	defer rows.Close()

	backup := keyBackup{Version: backupVersion}
	for rows.Next() {
		var e KeyEntry
		if err := rows.Scan(&e.FileID, &e.Key, &e.Nonce, &e.Salt,
			&e.FileName, &e.MimeType, &e.IsPasswordProtected); err != nil {
			return nil, fmt.Errorf("export keys: %w", err)
		}
		backup.Entries = append(backup.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export keys: %w", err)
	}

	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export keys: %w", err)
	}
	return data, nil
}

// ImportKeys restores key entries from a backup produced by ExportKeys.
// Existing entries with the same file ID are overwritten. Returns the number
// of entries imported.
func (d *DB) ImportKeys(data []byte) (int, error) {
	var backup keyBackup
	if err := json.Unmarshal(data, &backup); err != nil {
		return 0, fmt.Errorf("import keys: %w", err)
	}
	if backup.Version != backupVersion {
		return 0, fmt.Errorf("import keys: unsupported backup version %d", backup.Version)
	}

	imported := 0
	for _, e := range backup.Entries {
		if e.FileID == "" || e.IsPasswordProtected {
			continue
		}
		if err := d.StoreKey(e.FileID, e.Key, e.Nonce, e.FileName, e.MimeType); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
