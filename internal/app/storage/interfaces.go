package storage

import (
	"context"
	"errors"

	"github.com/quartzlabs/chatvault/internal/app/domain/credential"
	"github.com/quartzlabs/chatvault/internal/app/domain/provider"
	"github.com/quartzlabs/chatvault/internal/app/domain/user"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness constraint rejected the write, e.g.
	// two concurrent attempts to create a credential for the same provider.
	ErrConflict = errors.New("conflict")
)

// UserStore persists user rows.
type UserStore interface {
	CreateUser(ctx context.Context, usr user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)

	// RotatePassphrase stores a new passphrase hash and salt and deletes every
	// credential row owned by the user in the same transaction. The old
	// ciphertexts are unrecoverable under the new salt, so keeping them would
	// only preserve garbage.
	RotatePassphrase(ctx context.Context, userID, passphraseHash, saltHex string) error
}

// ProviderStore persists the AI provider catalog.
type ProviderStore interface {
	CreateProvider(ctx context.Context, prov provider.Provider) (provider.Provider, error)
	GetProviderByName(ctx context.Context, lowercaseName string) (provider.Provider, error)
	ListProviders(ctx context.Context) ([]provider.Provider, error)
}

// CredentialChanges is a reconciled set of credential mutations. All three
// slices commit atomically or not at all.
type CredentialChanges struct {
	Create []credential.Record
	Update []credential.Record
	Delete []string // record ids
}

// Empty reports whether the change set carries no mutations.
func (c CredentialChanges) Empty() bool {
	return len(c.Create) == 0 && len(c.Update) == 0 && len(c.Delete) == 0
}

// CredentialStore persists encrypted credential records.
type CredentialStore interface {
	ListCredentials(ctx context.Context, userID string) ([]credential.Record, error)

	// ApplyCredentialChanges commits creates, updates and deletes in one
	// transaction. A (user_id, provider_id) uniqueness violation returns
	// ErrConflict and rolls back the whole set.
	ApplyCredentialChanges(ctx context.Context, userID string, changes CredentialChanges) error

	DeleteCredentials(ctx context.Context, userID string) error
}
