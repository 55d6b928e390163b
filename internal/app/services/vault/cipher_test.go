package vault

import (
	"errors"
	"strings"
	"testing"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewAESCipher(make([]byte, 32))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	ciphertext, err := c.Encrypt("sk-test-credential")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if strings.Contains(ciphertext, "sk-test-credential") {
		t.Fatalf("ciphertext leaks plaintext: %s", ciphertext)
	}

	plaintext, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plaintext != "sk-test-credential" {
		t.Fatalf("unexpected plaintext: %s", plaintext)
	}
}

func TestCipherNoncesDiffer(t *testing.T) {
	c, err := NewAESCipher(make([]byte, 32))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	first, err := c.Encrypt("same-input")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	second, err := c.Encrypt("same-input")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct ciphertexts for repeated plaintext")
	}
}

func TestCipherDecryptFailuresAreUniform(t *testing.T) {
	c, err := NewAESCipher(make([]byte, 32))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	valid, err := c.Encrypt("value")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	flipped := "0"
	if valid[0] == '0' {
		flipped = "1"
	}
	tampered := flipped + valid[1:]

	for _, input := range []string{"", "zzzz", "abcd", tampered} {
		if _, err := c.Decrypt(input); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("decrypt %q: expected ErrDecryptionFailed, got %v", input, err)
		}
	}

	otherKey := make([]byte, 32)
	otherKey[0] = 1
	other, err := NewAESCipher(otherKey)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	if _, err := other.Decrypt(valid); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("wrong key: expected ErrDecryptionFailed, got %v", err)
	}
}

func TestNewAESCipherRejectsBadKeySize(t *testing.T) {
	if _, err := NewAESCipher(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for 10 byte key")
	}
}
