package vault

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	// PassphraseLength is the size of generated passphrases. Kept under
	// bcrypt's 72-byte input limit; at ~6.5 bits per character the result is
	// far beyond brute-force reach anyway.
	PassphraseLength = 32

	// SaltLength is the per-user salt size in bytes.
	SaltLength = 16

	passphraseAlphabet = "abcdefghijklmnopqrstuvwxyz" +
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
		"0123456789" +
		"!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// GeneratePassphrase returns a random passphrase of the given length drawn
// from letters, digits and punctuation.
func GeneratePassphrase(length int) (string, error) {
	if length <= 0 {
		length = PassphraseLength
	}
	out := make([]byte, length)
	max := big.NewInt(int64(len(passphraseAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate passphrase: %w", err)
		}
		out[i] = passphraseAlphabet[n.Int64()]
	}
	return string(out), nil
}

// GenerateSalt returns SaltLength random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// HashPassphrase produces a one-way bcrypt hash for verification. The hash
// gates access only; it plays no part in key derivation.
func HashPassphrase(passphrase string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash passphrase: %w", err)
	}
	return string(hash), nil
}

// VerifyPassphrase reports whether the passphrase matches the stored hash.
// bcrypt's comparison is constant-time with respect to the candidate.
func VerifyPassphrase(hash, passphrase string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passphrase)) == nil
}
