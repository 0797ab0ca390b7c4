package crypto

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// blindContext is a fixed application salt for deriving per-password blinding
// secrets. It scopes the derivation so a blinding secret can never collide
// with an encryption key derived from the same password.
var blindContext = []byte("driftvault.blind.v1")

// Blind computes a server-queryable hash of contentHash under secret. The
// server can match two identical payloads blinded with the same secret, but
// learns neither the content hash nor anything that correlates across
// distinct secrets.
func Blind(contentHash, secret []byte) string {
	h := sha3.New256()
	h.Write(secret)
	h.Write(contentHash)
	return hex.EncodeToString(h.Sum(nil))
}

// NewBlindSecret returns a random 32-byte per-device blinding secret.
func NewBlindSecret() []byte {
	secret := make([]byte, keyLen)
	if _, err := rand.Read(secret); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return secret
}

// BlindSecretFromPassword deterministically derives a blinding secret from a
// password. Two files encrypted with the same password blind to the same
// value and dedup against each other; different passwords never match.
func BlindSecretFromPassword(password string) []byte {
	return DeriveKey(password, blindContext)
}
