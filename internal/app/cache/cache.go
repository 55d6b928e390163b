// Package cache holds the session-scoped credential cache used between a
// vault unlock and subsequent AI-provider calls. Entries carry ciphertext
// only; plaintext credentials and passphrase-derived keys never enter the
// cache. The persisted store stays authoritative: every entry here is a
// disposable projection rebuilt wholesale after each unlock or update.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss indicates the session has no cached record for the requested
// provider, either because the session never unlocked the vault or because
// the record expired. It says nothing about whether a credential exists in
// the persisted store; callers must prompt for the passphrase, not report a
// missing key.
var ErrCacheMiss = errors.New("cache miss")

// Entry is one cached credential, keyed by provider lowercase name.
type Entry struct {
	CiphertextHex string `json:"key"`
	ProviderID    string `json:"api_provider_id"`
	ProviderName  string `json:"api_provider_name"`
}

// SessionCache stores unlocked credential sets per session with a sliding
// TTL. Sessions are opaque identifiers minted at login, deliberately not the
// user's primary key, so a leaked cache key correlates with nothing durable.
type SessionCache interface {
	// Put replaces the session's entire record. An empty entries map removes
	// the record. The user id feeds a session index so InvalidateUser can
	// reach every live session of a user.
	Put(ctx context.Context, userID, sessionID string, entries map[string]Entry, ttl time.Duration) error

	// Get returns the entry for a provider lowercase name and slides the
	// record's TTL forward to the configured constant. Absent session and
	// absent provider both return ErrCacheMiss.
	Get(ctx context.Context, sessionID, providerLowercaseName string) (Entry, error)

	// Invalidate removes a single session's record immediately.
	Invalidate(ctx context.Context, sessionID string) error

	// InvalidateUser removes the records of every session indexed for the
	// user. Used on passphrase rotation.
	InvalidateUser(ctx context.Context, userID string) error
}
