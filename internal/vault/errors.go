package vault

import "errors"

// Error taxonomy for the storage adapter. Transport failures are retried
// through the fallback chain before surfacing; cryptographic failures are
// never retried automatically.
var (
	// ErrTransportUnavailable: swarm and pinning server both unreachable.
	// Fatal for uploads, retryable for downloads.
	ErrTransportUnavailable = errors.New("no transport available")

	// ErrNotAuthorized: the decryption key for a private file is absent
	// locally. Terminal; retrying cannot produce the key.
	ErrNotAuthorized = errors.New("not authorized to decrypt")

	// ErrDecryptionFailed: wrong password or corrupted/tampered ciphertext.
	// Terminal for this attempt; the user may retry with another password.
	ErrDecryptionFailed = errors.New("wrong password or corrupted data")

	// ErrPasswordRequired: the file is password-protected and no password
	// was supplied.
	ErrPasswordRequired = errors.New("password required")

	// ErrRateLimited: the server throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrPayloadTooLarge: rejected by the server before any storage attempt.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrNotFound: the identifier is unknown to every tier.
	ErrNotFound = errors.New("not found")

	// ErrVisibilityConflict: the same plaintext is already indexed under a
	// different visibility; it cannot be re-published without first deleting
	// the existing references.
	ErrVisibilityConflict = errors.New("content already stored with different visibility")
)

// RateLimitedError carries the server's retry-after hint.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string { return "rate limited" }

// Is makes RateLimitedError match ErrRateLimited.
func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }
