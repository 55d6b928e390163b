package vault

import (
	"context"
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 iteration count. The cost is intentional:
	// it is what makes offline brute force of a stolen database impractical.
	DefaultIterations = 600_000

	// DefaultDeriveWorkers bounds how many derivations may run at once.
	DefaultDeriveWorkers = 4

	keyLength = 32
)

// Deriver turns a passphrase and salt into a symmetric key via
// PBKDF2-HMAC-SHA256. Derivation takes hundreds of milliseconds at the
// default iteration count, so a slot semaphore bounds concurrency; callers
// block in Derive until a slot frees or their context is cancelled, which
// keeps a burst of unlocks from starving everything else on CPU.
type Deriver struct {
	iterations int
	slots      chan struct{}
}

// NewDeriver creates a Deriver. Non-positive arguments fall back to the
// package defaults.
func NewDeriver(iterations, workers int) *Deriver {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if workers <= 0 {
		workers = DefaultDeriveWorkers
	}
	return &Deriver{
		iterations: iterations,
		slots:      make(chan struct{}, workers),
	}
}

// Derive computes the symmetric key for a passphrase and salt. Deterministic:
// identical inputs always yield identical keys.
func (d *Deriver) Derive(ctx context.Context, passphrase string, salt []byte) ([]byte, error) {
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-d.slots }()

	return pbkdf2.Key([]byte(passphrase), salt, d.iterations, keyLength, sha256.New), nil
}
