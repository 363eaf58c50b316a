// Package secretbox encrypts small values at rest with AES-256-GCM, notably
// the access_key/secret_key pair inside ConfigStore's storage-s3 setting.
// Adapted from the teacher's pkg/security.SecretsManager: same cipher,
// nonce-prepended-to-ciphertext layout, and derive-key-from-an-existing-
// secret idiom (the teacher derives from a cluster ID; here it's the
// server token, since no standalone encryption-key env var is in scope).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// Box seals and opens values under a single derived key.
type Box struct {
	key []byte
}

// New derives a 32-byte AES-256 key from secret via SHA-256, matching the
// teacher's DeriveKeyFromClusterID. secret must be non-empty.
func New(secret string) (*Box, error) {
	if secret == "" {
		return nil, fmt.Errorf("secretbox: key material cannot be empty")
	}
	sum := sha256.Sum256([]byte(secret))
	return &Box{key: sum[:]}, nil
}

// Seal encrypts plaintext, returning the nonce prepended to the ciphertext.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secretbox: generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (b *Box) Open(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: new gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("secretbox: ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("secretbox: open: %w", err)
	}
	return plaintext, nil
}

// SealString is Seal for a plaintext string, base64-encoded for embedding in
// a JSON settings value (storage-s3's access_key/secret_key fields).
func (b *Box) SealString(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	ciphertext, err := b.Seal([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// OpenString is Open for a base64-encoded ciphertext string.
func (b *Box) OpenString(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("secretbox: decode base64: %w", err)
	}
	plaintext, err := b.Open(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
