package vault

import (
	"context"
	"fmt"
	"log"

	"github.com/halcyon-systems/driftvault/internal/crypto"
	"github.com/halcyon-systems/driftvault/internal/localstore"
	"github.com/halcyon-systems/driftvault/internal/swarm"
)

// PutOptions control visibility and metadata for an upload.
type PutOptions struct {
	Visibility string // public, private or password-protected; default public
	Password   string // required for password-protected
	MimeType   string
}

// PutResult is the outcome of an upload.
type PutResult struct {
	StorageID    string
	MagnetURI    string
	Visibility   string
	Meta         *EncryptionMeta // nil for public files
	Deduplicated bool
	RefCount     int
}

// Put uploads a file. Identical plaintext already indexed locally is not
// re-encrypted or re-published; its reference count grows instead. The key
// material for a new upload is persisted before Put returns, so a successful
// response implies the owner can decrypt the file from that point forward.
func (v *Vault) Put(ctx context.Context, name string, data []byte, opts PutOptions) (*PutResult, error) {
	visibility := opts.Visibility
	if visibility == "" {
		visibility = localstore.VisibilityPublic
	}
	switch visibility {
	case localstore.VisibilityPublic, localstore.VisibilityPrivate, localstore.VisibilityPassword:
	default:
		return nil, fmt.Errorf("unknown visibility %q", visibility)
	}
	if visibility == localstore.VisibilityPassword && opts.Password == "" {
		return nil, fmt.Errorf("password-protected visibility requires a password")
	}

	contentHash := crypto.HashContentHex(data)

	secret, err := v.blindSecret(visibility, opts.Password)
	if err != nil {
		return nil, err
	}
	blinded := crypto.Blind(crypto.HashContent(data), secret)

	// Local dedup: same plaintext, same scope - reuse everything.
	existing, err := v.db.Lookup(contentHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Visibility != visibility || (visibility == localstore.VisibilityPassword && existing.BlindedHash != blinded) {
			return nil, fmt.Errorf("put %s: %w", name, ErrVisibilityConflict)
		}
		count, err := v.db.IncrementRef(contentHash)
		if err != nil {
			return nil, err
		}
		meta, err := v.metaFor(existing.StorageID, name, opts.MimeType)
		if err != nil {
			return nil, err
		}
		return &PutResult{
			StorageID:    existing.StorageID,
			MagnetURI:    swarm.Magnet(existing.StorageID, swarm.SanitizeName(name), nil),
			Visibility:   visibility,
			Meta:         meta,
			Deduplicated: true,
			RefCount:     count,
		}, nil
	}

	// Server dedup probe. Adoption only helps when this device could decrypt
	// the existing payload, which it cannot for a private file whose key it
	// never held - so the probe is limited to public and password scopes.
	if v.pin != nil && visibility != localstore.VisibilityPrivate {
		if id, err := v.pin.Dedup(ctx, blinded); err == nil && id != "" {
			return v.adoptRemote(ctx, id, name, data, visibility, contentHash, blinded, opts)
		}
	}

	return v.publishNew(ctx, name, data, visibility, contentHash, blinded, opts)
}

// publishNew runs the full encrypt-and-publish path for a first-seen payload.
func (v *Vault) publishNew(ctx context.Context, name string, data []byte, visibility, contentHash, blinded string, opts PutOptions) (*PutResult, error) {
	payload := data
	var key, nonce, salt []byte
	var err error

	switch visibility {
	case localstore.VisibilityPrivate:
		payload, key, nonce, err = crypto.EncryptRandomKey(data)
	case localstore.VisibilityPassword:
		payload, salt, nonce, err = crypto.EncryptWithPassword(data, opts.Password)
	}
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	sanitized := swarm.SanitizeName(name)

	res, err := v.swarm.Publish(ctx, sanitized, payload)
	if err != nil {
		// Swarm down: the pinning server alone can still make the upload
		// durable. Both failing is fatal.
		if v.pin == nil {
			return nil, fmt.Errorf("publish %s: %w: %v", name, ErrTransportUnavailable, err)
		}
		pinned, pinErr := v.pin.Upload(ctx, sanitized, payload, blinded)
		if pinErr != nil {
			return nil, fmt.Errorf("publish %s: swarm (%v) and pin server (%v): %w",
				name, err, pinErr, ErrTransportUnavailable)
		}
		res = &swarm.PublishResult{InfoHash: pinned.InfoHash, MagnetURI: pinned.MagnetURI}
	} else if v.pin != nil {
		// Pinning is an availability optimization; it must not block the
		// result and its failure is not the upload's failure.
		go func(payload []byte) {
			if _, err := v.pin.Upload(context.Background(), sanitized, payload, blinded); err != nil {
				log.Printf("[vault] pin %s: %v", res.InfoHash, err)
			}
		}(payload)
	}

	// Key custody must land before success is reported.
	var meta *EncryptionMeta
	switch visibility {
	case localstore.VisibilityPrivate:
		if err := v.db.StoreKey(res.InfoHash, key, nonce, name, opts.MimeType); err != nil {
			return nil, err
		}
		meta = &EncryptionMeta{IV: nonce, OriginalType: opts.MimeType, OriginalName: name}
	case localstore.VisibilityPassword:
		if err := v.db.StorePasswordMeta(res.InfoHash, salt, nonce, name, opts.MimeType); err != nil {
			return nil, err
		}
		meta = &EncryptionMeta{IV: nonce, Salt: salt, OriginalType: opts.MimeType, OriginalName: name}
	}

	entry := &localstore.IndexEntry{
		ContentHash: contentHash,
		StorageID:   res.InfoHash,
		BlindedHash: blinded,
		Visibility:  visibility,
		Size:        int64(len(data)),
	}
	if err := v.db.StoreEntry(entry); err != nil {
		return nil, err
	}

	return &PutResult{
		StorageID:  res.InfoHash,
		MagnetURI:  res.MagnetURI,
		Visibility: visibility,
		Meta:       meta,
		RefCount:   1,
	}, nil
}

// adoptRemote records a server-side dedup hit locally without re-publishing.
func (v *Vault) adoptRemote(ctx context.Context, id, name string, data []byte, visibility, contentHash, blinded string, opts PutOptions) (*PutResult, error) {
	var meta *EncryptionMeta
	if visibility == localstore.VisibilityPassword {
		// The payload exists remotely but this device has no salt/nonce for
		// it; without them the password cannot decrypt. Publish fresh.
		e, err := v.db.GetKey(id)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return v.publishNew(ctx, name, data, visibility, contentHash, blinded, opts)
		}
		meta = &EncryptionMeta{IV: e.Nonce, Salt: e.Salt, OriginalType: e.MimeType, OriginalName: e.FileName}
	}

	entry := &localstore.IndexEntry{
		ContentHash: contentHash,
		StorageID:   id,
		BlindedHash: blinded,
		Visibility:  visibility,
		Size:        int64(len(data)),
	}
	if err := v.db.StoreEntry(entry); err != nil {
		return nil, err
	}

	return &PutResult{
		StorageID:    id,
		MagnetURI:    swarm.Magnet(id, swarm.SanitizeName(name), nil),
		Visibility:   visibility,
		Meta:         meta,
		Deduplicated: true,
		RefCount:     1,
	}, nil
}

// blindSecret picks the blinding scope: per-password for password-protected
// files, per-device otherwise.
func (v *Vault) blindSecret(visibility, password string) ([]byte, error) {
	if visibility == localstore.VisibilityPassword {
		return crypto.BlindSecretFromPassword(password), nil
	}
	return v.db.BlindSecret()
}

// metaFor rebuilds the encryption metadata block for an already-stored file.
func (v *Vault) metaFor(storageID, name, mimeType string) (*EncryptionMeta, error) {
	e, err := v.db.GetKey(storageID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil // public
	}
	meta := &EncryptionMeta{IV: e.Nonce, OriginalType: e.MimeType, OriginalName: e.FileName}
	if meta.OriginalName == "" {
		meta.OriginalName = name
	}
	if meta.OriginalType == "" {
		meta.OriginalType = mimeType
	}
	if e.IsPasswordProtected {
		meta.Salt = e.Salt
	}
	return meta, nil
}
