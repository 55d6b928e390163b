package credential

import "time"

// Record is a stored third-party API key. CiphertextHex is opaque without the
// key derived from the owner's passphrase and salt; the server keeps no copy
// of that key. At most one Record exists per (UserID, ProviderID), enforced by
// a storage-level unique constraint.
type Record struct {
	ID            string
	UserID        string
	ProviderID    string
	CiphertextHex string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Unlocked is a decrypted credential returned from a vault unlock. It never
// touches persistence or the cache in this form.
type Unlocked struct {
	ProviderID            string
	ProviderName          string
	ProviderLowercaseName string
	Plaintext             string
}
