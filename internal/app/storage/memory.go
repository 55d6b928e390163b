package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quartzlabs/chatvault/internal/app/domain/credential"
	"github.com/quartzlabs/chatvault/internal/app/domain/provider"
	"github.com/quartzlabs/chatvault/internal/app/domain/user"
)

// Memory is a thread-safe in-memory persistence layer implementing the store
// interfaces in this package. It is intended for tests and prototyping and
// enforces the same uniqueness rules as the SQL schema, including the
// (user_id, provider_id) constraint backing ErrConflict.
type Memory struct {
	mu          sync.RWMutex
	nextID      int64
	users       map[string]user.User
	providers   map[string]provider.Provider
	credentials map[string]credential.Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextID:      1,
		users:       make(map[string]user.User),
		providers:   make(map[string]provider.Provider),
		credentials: make(map[string]credential.Record),
	}
}

var _ UserStore = (*Memory)(nil)
var _ ProviderStore = (*Memory)(nil)
var _ CredentialStore = (*Memory)(nil)

func (m *Memory) nextIDLocked() string {
	id := m.nextID
	m.nextID++
	return fmt.Sprintf("%d", id)
}

// UserStore implementation ----------------------------------------------------

func (m *Memory) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, usr.Email) {
			return user.User{}, fmt.Errorf("user %s: %w", usr.Email, ErrConflict)
		}
	}

	if usr.ID == "" {
		usr.ID = m.nextIDLocked()
	} else if _, exists := m.users[usr.ID]; exists {
		return user.User{}, fmt.Errorf("user %s: %w", usr.ID, ErrConflict)
	}

	now := time.Now().UTC()
	usr.CreatedAt = now
	usr.UpdatedAt = now

	m.users[usr.ID] = usr
	return usr, nil
}

func (m *Memory) GetUser(_ context.Context, id string) (user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	usr, ok := m.users[id]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return usr, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, usr := range m.users {
		if strings.EqualFold(usr.Email, email) {
			return usr, nil
		}
	}
	return user.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

func (m *Memory) RotatePassphrase(_ context.Context, userID, passphraseHash, saltHex string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	usr, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	usr.PassphraseHash = passphraseHash
	usr.PassphraseSaltHex = saltHex
	usr.UpdatedAt = time.Now().UTC()
	m.users[userID] = usr

	for id, rec := range m.credentials {
		if rec.UserID == userID {
			delete(m.credentials, id)
		}
	}
	return nil
}

// ProviderStore implementation ------------------------------------------------

func (m *Memory) CreateProvider(_ context.Context, prov provider.Provider) (provider.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prov.LowercaseName == "" {
		prov.LowercaseName = strings.ToLower(prov.Name)
	}
	for _, existing := range m.providers {
		if existing.LowercaseName == prov.LowercaseName {
			return provider.Provider{}, fmt.Errorf("provider %s: %w", prov.Name, ErrConflict)
		}
	}

	if prov.ID == "" {
		prov.ID = m.nextIDLocked()
	}
	now := time.Now().UTC()
	prov.CreatedAt = now
	prov.UpdatedAt = now

	m.providers[prov.ID] = prov
	return prov, nil
}

func (m *Memory) GetProviderByName(_ context.Context, lowercaseName string) (provider.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, prov := range m.providers {
		if prov.LowercaseName == strings.ToLower(lowercaseName) {
			return prov, nil
		}
	}
	return provider.Provider{}, fmt.Errorf("provider %s: %w", lowercaseName, ErrNotFound)
}

func (m *Memory) ListProviders(_ context.Context) ([]provider.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]provider.Provider, 0, len(m.providers))
	for _, prov := range m.providers {
		out = append(out, prov)
	}
	return out, nil
}

// CredentialStore implementation ----------------------------------------------

func (m *Memory) ListCredentials(_ context.Context, userID string) ([]credential.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []credential.Record
	for _, rec := range m.credentials {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) ApplyCredentialChanges(_ context.Context, userID string, changes CredentialChanges) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate the whole set against current state before mutating anything,
	// mirroring the all-or-nothing transaction of the SQL store.
	taken := make(map[string]bool)
	for _, rec := range m.credentials {
		if rec.UserID == userID {
			taken[rec.ProviderID] = true
		}
	}
	deleted := make(map[string]bool)
	for _, id := range changes.Delete {
		rec, ok := m.credentials[id]
		if !ok || rec.UserID != userID {
			return fmt.Errorf("credential %s: %w", id, ErrNotFound)
		}
		deleted[id] = true
		taken[rec.ProviderID] = false
	}
	for _, rec := range changes.Update {
		existing, ok := m.credentials[rec.ID]
		if !ok || existing.UserID != userID {
			return fmt.Errorf("credential %s: %w", rec.ID, ErrNotFound)
		}
	}
	for _, rec := range changes.Create {
		if taken[rec.ProviderID] {
			return fmt.Errorf("credential for provider %s: %w", rec.ProviderID, ErrConflict)
		}
		taken[rec.ProviderID] = true
	}

	now := time.Now().UTC()
	for id := range deleted {
		delete(m.credentials, id)
	}
	for _, rec := range changes.Update {
		existing := m.credentials[rec.ID]
		existing.CiphertextHex = rec.CiphertextHex
		existing.UpdatedAt = now
		m.credentials[rec.ID] = existing
	}
	for _, rec := range changes.Create {
		if rec.ID == "" {
			rec.ID = m.nextIDLocked()
		}
		rec.UserID = userID
		rec.CreatedAt = now
		rec.UpdatedAt = now
		m.credentials[rec.ID] = rec
	}
	return nil
}

func (m *Memory) DeleteCredentials(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range m.credentials {
		if rec.UserID == userID {
			delete(m.credentials, id)
		}
	}
	return nil
}
