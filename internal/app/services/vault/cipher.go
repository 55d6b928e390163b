package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// Cipher performs authenticated encryption of single credential strings with
// AES-256-GCM. Ciphertext is hex encoded for storage as text, nonce first.
type Cipher struct {
	aead cipher.AEAD
}

// NewAESCipher creates a Cipher from a 16, 24 or 32 byte key.
func NewAESCipher(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals a plaintext credential and returns hex(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt opens hex(nonce || ciphertext). Every failure mode collapses to
// ErrDecryptionFailed: malformed hex, truncated input and authentication
// failure under the wrong key must stay externally indistinguishable.
func (c *Cipher) Decrypt(ciphertextHex string) (string, error) {
	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrDecryptionFailed
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
