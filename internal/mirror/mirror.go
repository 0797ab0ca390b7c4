// Package mirror implements the durable object-storage tier: a best-effort,
// S3-compatible disaster-recovery copy of every artifact and the last-resort
// retrieval tier on download.
package mirror

import (
	"context"
	"errors"
)

// ErrObjectNotFound indicates no mirrored object matches the request.
var ErrObjectNotFound = errors.New("object not found in mirror")

// ObjectStore is the injected handle to a durable object-storage backend.
type ObjectStore interface {
	// Put uploads an object under key.
	Put(ctx context.Context, key string, data []byte) error

	// Get downloads an object by exact key.
	Get(ctx context.Context, key string) ([]byte, error)

	// ProbePrefix returns the bytes of the first object whose key starts
	// with prefix, or ErrObjectNotFound. Artifacts are stored under
	// "<infoHash>/<name>", so probing by identifier needs no name.
	ProbePrefix(ctx context.Context, prefix string) ([]byte, error)

	// Delete removes an object by exact key.
	Delete(ctx context.Context, key string) error
}

// ObjectKey builds the canonical mirror key for an artifact.
func ObjectKey(infoHash, name string) string {
	return infoHash + "/" + name
}
