package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const aesNonceLen = 12

// EncryptRandomKey encrypts plaintext under a freshly generated 256-bit key
// with AES-256-GCM. Every call generates both a new key and a new nonce, so
// nonce reuse under one key cannot occur.
func EncryptRandomKey(plaintext []byte) (ciphertext, key, nonce []byte, err error) {
	key = make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, nil, fmt.Errorf("generate key: %w", err)
	}

	ciphertext, nonce, err = seal(plaintext, key)
	if err != nil {
		return nil, nil, nil, err
	}
	return ciphertext, key, nonce, nil
}

// EncryptWithPassword derives a key from password via argon2id over a fresh
// salt, then encrypts with AES-256-GCM. The key itself is never returned; it
// is re-derivable from the password and salt.
func EncryptWithPassword(plaintext []byte, password string) (ciphertext, salt, nonce []byte, err error) {
	salt = GenerateSalt()
	key := DeriveKey(password, salt)

	ciphertext, nonce, err = seal(plaintext, key)
	if err != nil {
		return nil, nil, nil, err
	}
	return ciphertext, salt, nonce, nil
}

// Decrypt decrypts AES-256-GCM ciphertext with an explicit key. A tampered
// ciphertext or wrong key fails the authentication check and returns an error.
func Decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	return open(ciphertext, key, nonce)
}

// DecryptWithPassword re-derives the key from password and salt, then
// decrypts. A wrong password and corrupted ciphertext are indistinguishable:
// both fail the GCM tag check.
func DecryptWithPassword(ciphertext []byte, password string, salt, nonce []byte) ([]byte, error) {
	key := DeriveKey(password, salt)
	return open(ciphertext, key, nonce)
}

func seal(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("new cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("new gcm: %w", err)
	}

	nonce = make([]byte, aesNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func open(ciphertext, key, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}
