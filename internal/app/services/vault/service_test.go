package vault

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/quartzlabs/chatvault/internal/app/cache"
	"github.com/quartzlabs/chatvault/internal/app/domain/provider"
	"github.com/quartzlabs/chatvault/internal/app/domain/user"
	"github.com/quartzlabs/chatvault/internal/app/storage"
)

const testPassphrase = "correct-horse-battery-staple"

type fixture struct {
	svc      *Service
	store    *storage.Memory
	sessions *cache.Memory
	user     user.User
	openai   provider.Provider
	gemini   provider.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewMemory()
	sessions := cache.NewMemory(DefaultCacheTTL)

	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	hash, err := HashPassphrase(testPassphrase)
	if err != nil {
		t.Fatalf("hash passphrase: %v", err)
	}
	usr, err := store.CreateUser(context.Background(), user.User{
		Name:              "Ada",
		Email:             "ada@example.com",
		PassphraseHash:    hash,
		PassphraseSaltHex: hex.EncodeToString(salt),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	openai, err := store.CreateProvider(context.Background(), provider.Provider{Name: "OpenAI"})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	gemini, err := store.CreateProvider(context.Background(), provider.Provider{Name: "Gemini"})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	cacheCipher, err := NewAESCipher(make([]byte, 32))
	if err != nil {
		t.Fatalf("cache cipher: %v", err)
	}

	svc := New(store, store, store, sessions, cacheCipher, nil,
		WithDeriver(NewDeriver(1000, 2)))

	return &fixture{svc: svc, store: store, sessions: sessions, user: usr, openai: openai, gemini: gemini}
}

func TestUnlockRejectsWrongPassphrase(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Unlock(context.Background(), f.user.ID, "sess1", "wrong"); !errors.Is(err, ErrInvalidPassphrase) {
		t.Fatalf("expected ErrInvalidPassphrase, got %v", err)
	}
	if _, err := f.svc.Credential(context.Background(), "sess1", "openai"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("failed unlock must not populate the cache, got %v", err)
	}
}

func TestUnlockRejectsUserWithoutPassphrase(t *testing.T) {
	f := newFixture(t)

	usr, err := f.store.CreateUser(context.Background(), user.User{Name: "Bob", Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := f.svc.Unlock(context.Background(), usr.ID, "sess1", testPassphrase); !errors.Is(err, ErrInvalidPassphrase) {
		t.Fatalf("expected ErrInvalidPassphrase, got %v", err)
	}
}

func TestUpdateAndUnlockRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	desired := []DesiredCredential{
		{ProviderID: f.openai.ID, Plaintext: "sk-openai"},
		{ProviderID: f.gemini.ID, Plaintext: "sk-gemini"},
	}
	outcome, err := f.svc.Update(ctx, f.user.ID, "sess1", testPassphrase, desired)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}

	// Stored records must not contain the plaintext.
	records, err := f.store.ListCredentials(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("list credentials: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.CiphertextHex == "sk-openai" || rec.CiphertextHex == "sk-gemini" {
			t.Fatalf("plaintext persisted: %s", rec.CiphertextHex)
		}
	}

	unlocked, err := f.svc.Unlock(ctx, f.user.ID, "sess2", testPassphrase)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if len(unlocked) != 2 {
		t.Fatalf("expected 2 unlocked credentials, got %d", len(unlocked))
	}
	byName := make(map[string]string)
	for _, u := range unlocked {
		byName[u.ProviderLowercaseName] = u.Plaintext
	}
	if byName["openai"] != "sk-openai" || byName["gemini"] != "sk-gemini" {
		t.Fatalf("unexpected unlocked set: %#v", byName)
	}

	// The unlock populated the session cache for chat calls.
	plaintext, err := f.svc.Credential(ctx, "sess2", "OpenAI")
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if plaintext != "sk-openai" {
		t.Fatalf("expected cached credential, got %s", plaintext)
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	desired := []DesiredCredential{{ProviderID: f.openai.ID, Plaintext: "sk-1"}}
	if outcome, err := f.svc.Update(ctx, f.user.ID, "sess1", testPassphrase, desired); err != nil || outcome != OutcomeApplied {
		t.Fatalf("first update: outcome=%s err=%v", outcome, err)
	}
	if outcome, err := f.svc.Update(ctx, f.user.ID, "sess1", testPassphrase, desired); err != nil || outcome != OutcomeUnchanged {
		t.Fatalf("second update: outcome=%s err=%v", outcome, err)
	}
}

func TestUpdateReplacesAndDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed := []DesiredCredential{
		{ProviderID: f.openai.ID, Plaintext: "sk-old"},
		{ProviderID: f.gemini.ID, Plaintext: "sk-gone"},
	}
	if _, err := f.svc.Update(ctx, f.user.ID, "sess1", testPassphrase, seed); err != nil {
		t.Fatalf("seed update: %v", err)
	}

	next := []DesiredCredential{{ProviderID: f.openai.ID, Plaintext: "sk-new"}}
	if _, err := f.svc.Update(ctx, f.user.ID, "sess1", testPassphrase, next); err != nil {
		t.Fatalf("update: %v", err)
	}

	unlocked, err := f.svc.Unlock(ctx, f.user.ID, "sess1", testPassphrase)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0].Plaintext != "sk-new" {
		t.Fatalf("unexpected credentials after update: %#v", unlocked)
	}

	// The dropped provider is gone from the refreshed cache too.
	if _, err := f.svc.Credential(ctx, "sess1", "gemini"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("expected cache miss for removed provider, got %v", err)
	}
}

func TestUpdateValidatesProviders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dup := []DesiredCredential{
		{ProviderID: f.openai.ID, Plaintext: "a"},
		{ProviderID: f.openai.ID, Plaintext: "b"},
	}
	if _, err := f.svc.Update(ctx, f.user.ID, "sess1", testPassphrase, dup); !errors.Is(err, ErrDuplicateProvider) {
		t.Fatalf("expected ErrDuplicateProvider, got %v", err)
	}

	unknown := []DesiredCredential{{ProviderID: "does-not-exist", Plaintext: "a"}}
	if _, err := f.svc.Update(ctx, f.user.ID, "sess1", testPassphrase, unknown); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}

	if records, err := f.store.ListCredentials(ctx, f.user.ID); err != nil || len(records) != 0 {
		t.Fatalf("rejected updates must not persist anything: %v %#v", err, records)
	}
}

func TestUpdateRejectsWrongPassphrase(t *testing.T) {
	f := newFixture(t)

	desired := []DesiredCredential{{ProviderID: f.openai.ID, Plaintext: "sk-1"}}
	if _, err := f.svc.Update(context.Background(), f.user.ID, "sess1", "wrong", desired); !errors.Is(err, ErrInvalidPassphrase) {
		t.Fatalf("expected ErrInvalidPassphrase, got %v", err)
	}
}

func TestRotatePassphrase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	desired := []DesiredCredential{{ProviderID: f.openai.ID, Plaintext: "sk-1"}}
	if _, err := f.svc.Update(ctx, f.user.ID, "sess1", testPassphrase, desired); err != nil {
		t.Fatalf("update: %v", err)
	}

	passphrase, err := f.svc.RotatePassphrase(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if len(passphrase) != PassphraseLength {
		t.Fatalf("expected %d character passphrase, got %d", PassphraseLength, len(passphrase))
	}

	// Old credentials are unrecoverable and therefore deleted.
	records, err := f.store.ListCredentials(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("list credentials: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected credentials cleared, got %d", len(records))
	}

	// Cached sessions for the user are invalidated.
	if _, err := f.svc.Credential(ctx, "sess1", "openai"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("expected cache miss after rotation, got %v", err)
	}

	// The old passphrase is dead, the new one unlocks an empty vault.
	if _, err := f.svc.Unlock(ctx, f.user.ID, "sess2", testPassphrase); !errors.Is(err, ErrInvalidPassphrase) {
		t.Fatalf("old passphrase still accepted: %v", err)
	}
	unlocked, err := f.svc.Unlock(ctx, f.user.ID, "sess2", passphrase)
	if err != nil {
		t.Fatalf("unlock with new passphrase: %v", err)
	}
	if len(unlocked) != 0 {
		t.Fatalf("expected empty vault after rotation, got %d", len(unlocked))
	}
}

func TestRotatePassphraseUnknownUser(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RotatePassphrase(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCredentialMissesAreUniform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Unknown session and known session without the provider both miss.
	if _, err := f.svc.Credential(ctx, "no-such-session", "openai"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}

	if _, err := f.svc.Unlock(ctx, f.user.ID, "sess1", testPassphrase); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := f.svc.Credential(ctx, "sess1", "openai"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("expected cache miss for provider without credential, got %v", err)
	}
}
