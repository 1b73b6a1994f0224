// Package secrets encrypts exchange credentials at rest with AES-256-GCM.
// Plaintext credentials only exist in memory for the lifetime of a single
// signed exchange call.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

// Cipher seals and opens credential material under a key derived from the
// application master secret.
type Cipher struct {
	aead cipher.AEAD
}

// New derives a 256-bit key from the master secret and builds the AEAD.
// The master secret must be at least 32 characters; derivation hashes it
// so key length is independent of secret length.
func New(masterSecret string) (*Cipher, error) {
	if len(masterSecret) < 32 {
		return nil, fmt.Errorf("master secret must be at least 32 characters")
	}

	key := sha256.Sum256([]byte(masterSecret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gcm: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext and returns the nonce and ciphertext separately,
// matching the two-column storage layout.
func (c *Cipher) Seal(plaintext string) (nonce, ciphertext []byte, err error) {
	nonce = make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return nonce, ciphertext, nil
}

// Open decrypts a nonce+ciphertext pair produced by Seal.
func (c *Cipher) Open(nonce, ciphertext []byte) (string, error) {
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}
	return string(plaintext), nil
}
