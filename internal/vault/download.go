package vault

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/halcyon-systems/driftvault/internal/crypto"
	"github.com/halcyon-systems/driftvault/internal/localstore"
)

// Get retrieves and, when necessary, decrypts a file. The transports are
// tried in order: swarm (bounded by the fetch timeout), pinning server,
// legacy gateways for identifiers in the legacy addressing scheme. password
// is only consulted for password-protected files.
func (v *Vault) Get(ctx context.Context, id, password string) ([]byte, *FileMeta, error) {
	raw, err := v.fetch(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	entry, err := v.db.GetKey(id)
	if err != nil {
		return nil, nil, err
	}

	if entry == nil {
		// No key material. If the local index knows this file is encrypted,
		// absence of the key is a terminal authorization failure, not a
		// retryable one. Otherwise the payload is treated as public.
		idx, err := v.db.LookupByStorageID(id)
		if err != nil {
			return nil, nil, err
		}
		if idx != nil && idx.Visibility != localstore.VisibilityPublic {
			return nil, nil, fmt.Errorf("get %s: %w", id, ErrNotAuthorized)
		}
		if idx != nil {
			_ = v.db.Touch(idx.ContentHash)
		}
		return raw, &FileMeta{Visibility: localstore.VisibilityPublic}, nil
	}

	meta := &FileMeta{Name: entry.FileName, MimeType: entry.MimeType}

	var plaintext []byte
	if entry.IsPasswordProtected {
		meta.Visibility = localstore.VisibilityPassword
		if password == "" {
			return nil, nil, fmt.Errorf("get %s: %w", id, ErrPasswordRequired)
		}
		plaintext, err = crypto.DecryptWithPassword(raw, password, entry.Salt, entry.Nonce)
	} else {
		meta.Visibility = localstore.VisibilityPrivate
		plaintext, err = crypto.Decrypt(raw, entry.Key, entry.Nonce)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get %s: %w", id, ErrDecryptionFailed)
	}

	if idx, err := v.db.LookupByStorageID(id); err == nil && idx != nil {
		_ = v.db.Touch(idx.ContentHash)
	}

	return plaintext, meta, nil
}

// fetch obtains the raw (possibly encrypted) bytes through the fallback
// chain, accumulating which tiers were attempted for the final error.
func (v *Vault) fetch(ctx context.Context, id string) ([]byte, error) {
	var attempts []string

	if data, ok := v.swarmFetch(ctx, id); ok {
		return data, nil
	}
	attempts = append(attempts, "swarm")

	if v.pin != nil {
		data, err := v.pin.Download(ctx, id)
		if err == nil {
			return data, nil
		}
		attempts = append(attempts, "pin server")
	}

	if isLegacyID(id) {
		if data, err := v.legacyFetch(ctx, id); err == nil {
			return data, nil
		}
		attempts = append(attempts, "legacy gateways")
	}

	return nil, fmt.Errorf("fetch %s: tried %s: %w", id, strings.Join(attempts, ", "), ErrNotFound)
}

// swarmFetch races the swarm against the fetch timeout. A fetch that loses
// the race keeps running in the background: completing it still warms the
// swarm client for future requests of the same content.
func (v *Vault) swarmFetch(ctx context.Context, id string) ([]byte, bool) {
	type result struct {
		data []byte
		err  error
	}
	resCh := make(chan result, 1)

	go func() {
		data, err := v.swarm.Fetch(context.WithoutCancel(ctx), id)
		resCh <- result{data, err}
	}()

	select {
	case r := <-resCh:
		if r.err != nil {
			return nil, false
		}
		return r.data, true
	case <-time.After(v.fetchTimeout):
		log.Printf("[vault] swarm fetch %s timed out after %s", id, v.fetchTimeout)
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// legacyFetch probes the public gateways in order for a legacy identifier.
func (v *Vault) legacyFetch(ctx context.Context, id string) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	var lastErr error

	for _, gateway := range v.legacyGateways {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, gateway+id, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("gateway %s: status %d", gateway, resp.StatusCode)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return data, nil
	}

	if lastErr == nil {
		lastErr = ErrNotFound
	}
	return nil, fmt.Errorf("legacy fetch %s: %w", id, lastErr)
}

// isLegacyID reports whether an identifier belongs to the legacy
// content-addressing scheme rather than the swarm's infohash scheme.
func isLegacyID(id string) bool {
	if strings.HasPrefix(id, "Qm") && len(id) == 46 {
		return true
	}
	return strings.HasPrefix(id, "bafy")
}

// Delete drops one reference to a stored file. When the last reference goes,
// the index entry and key material are removed and the pinning server is
// asked, best effort, to drop its copy. Returns the remaining count.
func (v *Vault) Delete(ctx context.Context, id string) (int, error) {
	idx, err := v.db.LookupByStorageID(id)
	if err != nil {
		return 0, err
	}
	if idx == nil {
		return 0, fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}

	count, err := v.db.DecrementRef(idx.ContentHash)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return count, nil
	}

	if err := v.db.DeleteKey(id); err != nil {
		return 0, err
	}
	if r, ok := v.swarm.(interface{ Remove(string) }); ok {
		r.Remove(id)
	}
	if v.pin != nil {
		if err := v.pin.Delete(ctx, id); err != nil {
			log.Printf("[vault] server delete %s: %v", id, err)
		}
	}
	return 0, nil
}
