package user

import "time"

// User is an account holder. PassphraseHash and PassphraseSaltHex gate the
// credential vault and are set only by an explicit passphrase rotation; they
// are independent of the login password.
type User struct {
	ID                string
	Name              string
	Email             string
	PasswordHash      string
	PassphraseHash    string
	PassphraseSaltHex string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasPassphrase reports whether a vault passphrase has ever been issued.
func (u User) HasPassphrase() bool {
	return u.PassphraseHash != "" && u.PassphraseSaltHex != ""
}
