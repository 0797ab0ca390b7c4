package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent returns the SHA-256 hash of the original, unencrypted bytes.
// It is the primary dedup key: identical plaintext always hashes identically,
// regardless of which ciphertext it later travels as.
func HashContent(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// HashContentHex is HashContent in lowercase hex, for use as a database key.
func HashContentHex(data []byte) string {
	return hex.EncodeToString(HashContent(data))
}
