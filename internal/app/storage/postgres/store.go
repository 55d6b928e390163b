package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/quartzlabs/chatvault/internal/app/domain/credential"
	"github.com/quartzlabs/chatvault/internal/app/domain/provider"
	"github.com/quartzlabs/chatvault/internal/app/domain/user"
	"github.com/quartzlabs/chatvault/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.ProviderStore = (*Store)(nil)
var _ storage.CredentialStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// uniqueViolation is the PostgreSQL error code raised when an insert or update
// breaks a unique constraint, e.g. UNIQUE(user_id, api_provider_id).
const uniqueViolation = "23505"

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%v: %w", pqErr.Constraint, storage.ErrConflict)
	}
	return err
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	usr.CreatedAt = now
	usr.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, passphrase_hash, passphrase_salt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, usr.ID, usr.Name, usr.Email, usr.PasswordHash, usr.PassphraseHash, usr.PassphraseSaltHex, usr.CreatedAt, usr.UpdatedAt)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return usr, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.getUser(ctx, `WHERE lower(email) = lower($1)`, email)
}

func (s *Store) getUser(ctx context.Context, where string, arg interface{}) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, passphrase_hash, passphrase_salt, created_at, updated_at
		FROM users `+where, arg)

	var usr user.User
	if err := row.Scan(&usr.ID, &usr.Name, &usr.Email, &usr.PasswordHash, &usr.PassphraseHash, &usr.PassphraseSaltHex, &usr.CreatedAt, &usr.UpdatedAt); err != nil {
		return user.User{}, mapError(err)
	}
	return usr, nil
}

func (s *Store) RotatePassphrase(ctx context.Context, userID, passphraseHash, saltHex string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET passphrase_hash = $2, passphrase_salt = $3, updated_at = $4
		WHERE id = $1
	`, userID, passphraseHash, saltHex, time.Now().UTC())
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM api_keys WHERE user_id = $1
	`, userID); err != nil {
		return mapError(err)
	}

	return tx.Commit()
}

// --- ProviderStore ----------------------------------------------------------

func (s *Store) CreateProvider(ctx context.Context, prov provider.Provider) (provider.Provider, error) {
	if prov.ID == "" {
		prov.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	prov.CreatedAt = now
	prov.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_providers (id, name, lowercase_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, prov.ID, prov.Name, prov.LowercaseName, prov.CreatedAt, prov.UpdatedAt)
	if err != nil {
		return provider.Provider{}, mapError(err)
	}
	return prov, nil
}

func (s *Store) GetProviderByName(ctx context.Context, lowercaseName string) (provider.Provider, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, lowercase_name, created_at, updated_at
		FROM api_providers
		WHERE lowercase_name = lower($1)
	`, lowercaseName)

	var prov provider.Provider
	if err := row.Scan(&prov.ID, &prov.Name, &prov.LowercaseName, &prov.CreatedAt, &prov.UpdatedAt); err != nil {
		return provider.Provider{}, mapError(err)
	}
	return prov, nil
}

func (s *Store) ListProviders(ctx context.Context) ([]provider.Provider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, lowercase_name, created_at, updated_at
		FROM api_providers
		ORDER BY lowercase_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []provider.Provider
	for rows.Next() {
		var prov provider.Provider
		if err := rows.Scan(&prov.ID, &prov.Name, &prov.LowercaseName, &prov.CreatedAt, &prov.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, prov)
	}
	return result, rows.Err()
}

// --- CredentialStore --------------------------------------------------------

func (s *Store) ListCredentials(ctx context.Context, userID string) ([]credential.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, api_provider_id, ciphertext, created_at, updated_at
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []credential.Record
	for rows.Next() {
		var rec credential.Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ProviderID, &rec.CiphertextHex, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) ApplyCredentialChanges(ctx context.Context, userID string, changes storage.CredentialChanges) error {
	if changes.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// Deletes first so a create for a freed provider slot cannot trip the
	// unique constraint inside the same change set.
	for _, id := range changes.Delete {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM api_keys WHERE id = $1 AND user_id = $2
		`, id, userID)
		if err != nil {
			return mapError(err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("credential %s: %w", id, storage.ErrNotFound)
		}
	}

	for _, rec := range changes.Update {
		result, err := tx.ExecContext(ctx, `
			UPDATE api_keys
			SET ciphertext = $3, updated_at = $4
			WHERE id = $1 AND user_id = $2
		`, rec.ID, userID, rec.CiphertextHex, now)
		if err != nil {
			return mapError(err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("credential %s: %w", rec.ID, storage.ErrNotFound)
		}
	}

	for _, rec := range changes.Create {
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO api_keys (id, user_id, api_provider_id, ciphertext, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, userID, rec.ProviderID, rec.CiphertextHex, now, now); err != nil {
			return mapError(err)
		}
	}

	return tx.Commit()
}

func (s *Store) DeleteCredentials(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM api_keys WHERE user_id = $1
	`, userID)
	return mapError(err)
}
