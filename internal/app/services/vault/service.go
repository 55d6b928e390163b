// Package vault implements the encrypted API-key vault: passphrase-gated key
// derivation, authenticated credential encryption, desired-state
// reconciliation against the persisted store, and the session-scoped cache
// that lets chat calls reuse an unlocked credential without the passphrase.
package vault

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/quartzlabs/chatvault/internal/app/cache"
	"github.com/quartzlabs/chatvault/internal/app/domain/credential"
	"github.com/quartzlabs/chatvault/internal/app/domain/provider"
	"github.com/quartzlabs/chatvault/internal/app/metrics"
	"github.com/quartzlabs/chatvault/internal/app/storage"
	"github.com/quartzlabs/chatvault/pkg/logger"
)

// DefaultCacheTTL bounds how long an unlocked credential set stays readable
// without re-entering the passphrase.
const DefaultCacheTTL = 30 * time.Minute

// Service orchestrates the vault. It is the only component that touches the
// persisted store, the session cache and the cipher together.
type Service struct {
	users       storage.UserStore
	providers   storage.ProviderStore
	credentials storage.CredentialStore
	sessions    cache.SessionCache
	deriver     *Deriver
	cacheCipher *Cipher
	cacheTTL    time.Duration
	log         *logger.Logger
}

// Option configures optional service behaviour.
type Option func(*Service)

// WithCacheTTL overrides the session cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithDeriver overrides the key deriver, mainly so tests can drop the
// iteration count.
func WithDeriver(d *Deriver) Option {
	return func(s *Service) {
		if d != nil {
			s.deriver = d
		}
	}
}

// New constructs the vault service. cacheCipher encrypts entries at rest in
// the session cache; it is a server-side key independent of any user's
// passphrase-derived key, which never leaves the request that derived it.
func New(users storage.UserStore, providers storage.ProviderStore, credentials storage.CredentialStore, sessions cache.SessionCache, cacheCipher *Cipher, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("vault")
	}
	s := &Service{
		users:       users,
		providers:   providers,
		credentials: credentials,
		sessions:    sessions,
		deriver:     NewDeriver(DefaultIterations, DefaultDeriveWorkers),
		cacheCipher: cacheCipher,
		cacheTTL:    DefaultCacheTTL,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Unlock verifies the passphrase, decrypts every stored credential for the
// user and caches the set under the session id. Returns the decrypted list.
func (s *Service) Unlock(ctx context.Context, userID, sessionID, passphrase string) ([]credential.Unlocked, error) {
	cipher, err := s.unlockCipher(ctx, userID, passphrase)
	if err != nil {
		metrics.RecordUnlock("denied")
		return nil, err
	}

	unlocked, err := s.loadUnlocked(ctx, userID, cipher)
	if err != nil {
		metrics.RecordUnlock("error")
		return nil, err
	}

	s.refreshCache(ctx, userID, sessionID, unlocked)
	metrics.RecordUnlock("ok")

	s.log.WithField("user_id", userID).
		WithField("credentials", len(unlocked)).
		Info("vault unlocked")
	return unlocked, nil
}

// Update reconciles the desired credential list against persisted state and
// commits the diff in one transaction. The cache is rebuilt from a
// post-commit read so it only ever reflects durable truth. Calling Update
// again with the same desired set yields OutcomeUnchanged.
func (s *Service) Update(ctx context.Context, userID, sessionID, passphrase string, desired []DesiredCredential) (Outcome, error) {
	cipher, err := s.unlockCipher(ctx, userID, passphrase)
	if err != nil {
		return "", err
	}

	records, err := s.credentials.ListCredentials(ctx, userID)
	if err != nil {
		return "", err
	}
	persisted := make([]PersistedCredential, 0, len(records))
	for _, rec := range records {
		plaintext, err := cipher.Decrypt(rec.CiphertextHex)
		if err != nil {
			return "", fmt.Errorf("credential %s: %w", rec.ID, err)
		}
		persisted = append(persisted, PersistedCredential{
			RecordID:   rec.ID,
			ProviderID: rec.ProviderID,
			Plaintext:  plaintext,
		})
	}

	known, err := s.knownProviderIDs(ctx)
	if err != nil {
		return "", err
	}

	plan, err := Reconcile(desired, persisted, known)
	if err != nil {
		return "", err
	}
	if plan.Empty() {
		metrics.RecordUpdate(string(OutcomeUnchanged))
		return OutcomeUnchanged, nil
	}

	changes := storage.CredentialChanges{Delete: plan.Delete}
	for _, d := range plan.Create {
		ciphertext, err := cipher.Encrypt(d.Plaintext)
		if err != nil {
			return "", err
		}
		changes.Create = append(changes.Create, credential.Record{
			UserID:        userID,
			ProviderID:    d.ProviderID,
			CiphertextHex: ciphertext,
		})
	}
	for _, u := range plan.Update {
		ciphertext, err := cipher.Encrypt(u.Plaintext)
		if err != nil {
			return "", err
		}
		changes.Update = append(changes.Update, credential.Record{
			ID:            u.RecordID,
			UserID:        userID,
			ProviderID:    u.ProviderID,
			CiphertextHex: ciphertext,
		})
	}

	if err := s.credentials.ApplyCredentialChanges(ctx, userID, changes); err != nil {
		return "", err
	}

	// Rebuild the cache from what actually committed, never from the
	// pre-commit plan.
	unlocked, err := s.loadUnlocked(ctx, userID, cipher)
	if err != nil {
		return "", err
	}
	s.refreshCache(ctx, userID, sessionID, unlocked)

	metrics.RecordUpdate(string(OutcomeApplied))
	s.log.WithField("user_id", userID).
		WithField("created", len(plan.Create)).
		WithField("updated", len(plan.Update)).
		WithField("deleted", len(plan.Delete)).
		Info("vault credentials updated")
	return OutcomeApplied, nil
}

// RotatePassphrase issues a fresh random passphrase and salt, deletes every
// stored credential (unrecoverable under the new salt by design) and
// invalidates all of the user's cached sessions. The passphrase is returned
// exactly once and never retrievable afterwards.
func (s *Service) RotatePassphrase(ctx context.Context, userID string) (string, error) {
	passphrase, err := GeneratePassphrase(PassphraseLength)
	if err != nil {
		return "", err
	}
	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}
	hash, err := HashPassphrase(passphrase)
	if err != nil {
		return "", err
	}

	if err := s.users.RotatePassphrase(ctx, userID, hash, hex.EncodeToString(salt)); err != nil {
		return "", err
	}

	if err := s.sessions.InvalidateUser(ctx, userID); err != nil {
		// The relational store committed; stale cache entries expire with the
		// TTL, so surface the problem without failing the rotation.
		s.log.WithError(err).WithField("user_id", userID).Warn("cache invalidation after rotation failed")
	}

	s.log.WithField("user_id", userID).Info("passphrase rotated, credentials cleared")
	return passphrase, nil
}

// Credential returns the decrypted credential for a provider from the session
// cache. cache.ErrCacheMiss means the session must unlock the vault again; it
// does not mean the user has no key for the provider.
func (s *Service) Credential(ctx context.Context, sessionID, providerLowercaseName string) (string, error) {
	entry, err := s.sessions.Get(ctx, sessionID, strings.ToLower(providerLowercaseName))
	if err != nil {
		metrics.RecordCacheLookup(false)
		return "", err
	}
	metrics.RecordCacheLookup(true)

	plaintext, err := s.cacheCipher.Decrypt(entry.CiphertextHex)
	if err != nil {
		return "", err
	}
	return plaintext, nil
}

// unlockCipher verifies the passphrase and derives the user's credential
// cipher. Verification fails closed: derivation never runs for a wrong
// passphrase, so a bad passphrase surfaces as ErrInvalidPassphrase rather
// than a downstream decryption failure.
func (s *Service) unlockCipher(ctx context.Context, userID, passphrase string) (*Cipher, error) {
	usr, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !usr.HasPassphrase() || !VerifyPassphrase(usr.PassphraseHash, passphrase) {
		return nil, ErrInvalidPassphrase
	}

	salt, err := hex.DecodeString(usr.PassphraseSaltHex)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}

	start := time.Now()
	key, err := s.deriver.Derive(ctx, passphrase, salt)
	if err != nil {
		return nil, err
	}
	metrics.RecordDerive(time.Since(start))

	return NewAESCipher(key)
}

func (s *Service) knownProviderIDs(ctx context.Context) (map[string]struct{}, error) {
	provs, err := s.providers.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(provs))
	for _, p := range provs {
		known[p.ID] = struct{}{}
	}
	return known, nil
}

func (s *Service) loadUnlocked(ctx context.Context, userID string, cipher *Cipher) ([]credential.Unlocked, error) {
	records, err := s.credentials.ListCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	provs, err := s.providers.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]provider.Provider, len(provs))
	for _, p := range provs {
		byID[p.ID] = p
	}

	unlocked := make([]credential.Unlocked, 0, len(records))
	for _, rec := range records {
		plaintext, err := cipher.Decrypt(rec.CiphertextHex)
		if err != nil {
			return nil, fmt.Errorf("credential %s: %w", rec.ID, err)
		}
		prov := byID[rec.ProviderID]
		unlocked = append(unlocked, credential.Unlocked{
			ProviderID:            rec.ProviderID,
			ProviderName:          prov.Name,
			ProviderLowercaseName: prov.LowercaseName,
			Plaintext:             plaintext,
		})
	}
	return unlocked, nil
}

// refreshCache replaces the session's cached record with entries re-encrypted
// under the server-side cache key. Best effort: the cache is advisory, the
// next unlock rebuilds it and the TTL bounds any staleness.
func (s *Service) refreshCache(ctx context.Context, userID, sessionID string, unlocked []credential.Unlocked) {
	entries := make(map[string]cache.Entry, len(unlocked))
	for _, cred := range unlocked {
		ciphertext, err := s.cacheCipher.Encrypt(cred.Plaintext)
		if err != nil {
			s.log.WithError(err).Warn("encrypt cache entry")
			return
		}
		entries[cred.ProviderLowercaseName] = cache.Entry{
			CiphertextHex: ciphertext,
			ProviderID:    cred.ProviderID,
			ProviderName:  cred.ProviderName,
		}
	}
	if err := s.sessions.Put(ctx, userID, sessionID, entries, s.cacheTTL); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("session cache refresh failed")
	}
}
