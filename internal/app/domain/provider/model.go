package provider

import "time"

// Provider is an AI vendor users may store a credential for. LowercaseName is
// the case-insensitive lookup key used by chat integrations and the cache.
type Provider struct {
	ID            string
	Name          string
	LowercaseName string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
