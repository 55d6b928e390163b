package vault

import "errors"

var (
	// ErrInvalidPassphrase indicates passphrase verification failed against the
	// stored hash. Checked before any key derivation runs.
	ErrInvalidPassphrase = errors.New("invalid passphrase")

	// ErrDecryptionFailed indicates a ciphertext could not be opened. Wrong
	// key, truncation and tampering are deliberately indistinguishable so
	// decryption cannot be used as a passphrase-guessing oracle.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrUnknownProvider indicates a desired credential referenced a provider
	// id that is not in the catalog. No mutation is planned when raised.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrDuplicateProvider indicates a desired credential list named the same
	// provider twice. No mutation is planned when raised.
	ErrDuplicateProvider = errors.New("duplicate provider")
)
