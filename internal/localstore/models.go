// internal/localstore/models.go
package localstore

// Visibility modes for stored content.
const (
	VisibilityPublic   = "public"
	VisibilityPrivate  = "private"
	VisibilityPassword = "password-protected"
)

// KeyEntry holds the material needed to decrypt one published artifact. It
// never leaves the device except through an explicit key backup export.
type KeyEntry struct {
	FileID              string `json:"file_id"` // storage identifier
	Key                 []byte `json:"key,omitempty"`
	Nonce               []byte `json:"nonce"`
	Salt                []byte `json:"salt,omitempty"`
	FileName            string `json:"file_name"`
	MimeType            string `json:"mime_type"`
	IsPasswordProtected bool   `json:"is_password_protected"`
}

// IndexEntry maps one unique plaintext content to its stored form. The entry
// lives as long as at least one local reference to the content remains.
type IndexEntry struct {
	ContentHash    string `json:"content_hash"` // hex SHA-256 of plaintext
	StorageID      string `json:"storage_id"`
	BlindedHash    string `json:"blinded_hash"`
	Visibility     string `json:"visibility"`
	RefCount       int    `json:"ref_count"`
	Size           int64  `json:"size"`
	CreatedAt      int64  `json:"created_at"`
	LastAccessedAt int64  `json:"last_accessed_at"`
}
