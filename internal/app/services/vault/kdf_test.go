package vault

import (
	"bytes"
	"context"
	"testing"
)

func TestDeriveDeterministic(t *testing.T) {
	d := NewDeriver(1000, 2)
	salt := []byte("0123456789abcdef")

	first, err := d.Derive(context.Background(), "correct horse", salt)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, err := d.Derive(context.Background(), "correct horse", salt)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("identical inputs produced different keys")
	}
	if len(first) != 32 {
		t.Fatalf("expected 32 byte key, got %d", len(first))
	}
}

func TestDeriveSaltAndPassphraseChangeKey(t *testing.T) {
	d := NewDeriver(1000, 2)

	base, err := d.Derive(context.Background(), "passphrase", []byte("salt-one--------"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	otherSalt, err := d.Derive(context.Background(), "passphrase", []byte("salt-two--------"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	otherPass, err := d.Derive(context.Background(), "Passphrase", []byte("salt-one--------"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if bytes.Equal(base, otherSalt) {
		t.Fatalf("different salts produced the same key")
	}
	if bytes.Equal(base, otherPass) {
		t.Fatalf("different passphrases produced the same key")
	}
}

func TestDeriveHonoursCancelledContext(t *testing.T) {
	d := NewDeriver(1000, 1)
	// Occupy the only slot so the next caller has to wait.
	d.slots <- struct{}{}
	defer func() { <-d.slots }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Derive(ctx, "passphrase", []byte("salt")); err == nil {
		t.Fatalf("expected context error while slots are full")
	}
}

func TestNewDeriverDefaults(t *testing.T) {
	d := NewDeriver(0, 0)
	if d.iterations != DefaultIterations {
		t.Fatalf("expected default iterations, got %d", d.iterations)
	}
	if cap(d.slots) != DefaultDeriveWorkers {
		t.Fatalf("expected default worker count, got %d", cap(d.slots))
	}
}
