// Package crypto implements the vault that encrypts file bodies at rest.
// All stored bytes pass through AES-256-GCM with a process-wide key; the
// nonce is prepended to the ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Vault encrypts and decrypts file bodies with a fixed service key.
type Vault struct {
	gcm cipher.AEAD
}

// NewVault derives a 32-byte AES-256 key from the configured key string.
// Short keys are right-padded and long keys truncated, so any configured
// value yields a usable key.
func NewVault(key string) (*Vault, error) {
	keyBytes := normalizeKey(key)

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Vault{gcm: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return v.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce-prefixed ciphertext produced by Encrypt.
func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < v.gcm.NonceSize() {
		return nil, ErrInvalidCiphertext
	}
	nonce, sealed := ciphertext[:v.gcm.NonceSize()], ciphertext[v.gcm.NonceSize():]
	plaintext, err := v.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

func normalizeKey(key string) []byte {
	b := []byte(key)
	if len(b) > 32 {
		return b[:32]
	}
	for len(b) < 32 {
		b = append(b, '!')
	}
	return b
}
