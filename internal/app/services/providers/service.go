// Package providers exposes the AI provider catalog. The catalog is
// reference data: the vault validates desired credentials against it and chat
// integrations look providers up by lowercase name.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/quartzlabs/chatvault/internal/app/domain/provider"
	"github.com/quartzlabs/chatvault/internal/app/storage"
	"github.com/quartzlabs/chatvault/pkg/logger"
)

// Service manages the provider catalog.
type Service struct {
	store storage.ProviderStore
	log   *logger.Logger
}

// New constructs a provider catalog service.
func New(store storage.ProviderStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("providers")
	}
	return &Service{store: store, log: log}
}

// Create registers a provider. Name uniqueness is case-insensitive through
// the lowercase_name constraint.
func (s *Service) Create(ctx context.Context, name string) (provider.Provider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return provider.Provider{}, fmt.Errorf("name is required")
	}

	prov, err := s.store.CreateProvider(ctx, provider.Provider{
		Name:          name,
		LowercaseName: strings.ToLower(name),
	})
	if err != nil {
		return provider.Provider{}, err
	}
	s.log.WithField("provider_id", prov.ID).WithField("name", prov.Name).Info("provider created")
	return prov, nil
}

// GetByName looks a provider up by its case-insensitive name.
func (s *Service) GetByName(ctx context.Context, name string) (provider.Provider, error) {
	return s.store.GetProviderByName(ctx, strings.ToLower(strings.TrimSpace(name)))
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]provider.Provider, error) {
	return s.store.ListProviders(ctx)
}

// Seed inserts any of the given provider names that are not present yet.
// Called at startup so a fresh deployment has a usable catalog.
func (s *Service) Seed(ctx context.Context, names []string) error {
	for _, name := range names {
		if _, err := s.GetByName(ctx, name); err == nil {
			continue
		}
		if _, err := s.Create(ctx, name); err != nil {
			return fmt.Errorf("seed provider %s: %w", name, err)
		}
	}
	return nil
}
