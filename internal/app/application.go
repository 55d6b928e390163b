package app

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/quartzlabs/chatvault/internal/app/cache"
	authsvc "github.com/quartzlabs/chatvault/internal/app/services/auth"
	providersvc "github.com/quartzlabs/chatvault/internal/app/services/providers"
	vaultsvc "github.com/quartzlabs/chatvault/internal/app/services/vault"
	"github.com/quartzlabs/chatvault/internal/app/storage"
	"github.com/quartzlabs/chatvault/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users       storage.UserStore
	Providers   storage.ProviderStore
	Credentials storage.CredentialStore
}

// Options carries the cross-cutting dependencies the services need beyond
// storage. Zero-value fields fall back to development defaults.
type Options struct {
	// Sessions holds unlocked credential sets between requests. Defaults to
	// the in-memory cache when nil.
	Sessions cache.SessionCache

	// CacheKey encrypts credential material while it sits in the session
	// cache. When empty a random key is generated at startup, which means
	// cached sessions do not survive a restart.
	CacheKey []byte

	// JWTSecret signs access tokens. When empty a random secret is
	// generated, invalidating tokens across restarts.
	JWTSecret []byte

	TokenTTL      time.Duration
	CacheTTL      time.Duration
	KDFIterations int
	KDFWorkers    int
}

// Application ties the domain services together.
type Application struct {
	log *logger.Logger

	Auth      *authsvc.Service
	Providers *providersvc.Service
	Vault     *vaultsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := storage.NewMemory()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Providers == nil {
		stores.Providers = mem
	}
	if stores.Credentials == nil {
		stores.Credentials = mem
	}

	if opts.Sessions == nil {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = vaultsvc.DefaultCacheTTL
		}
		opts.Sessions = cache.NewMemory(ttl)
	}
	if len(opts.CacheKey) == 0 {
		log.Warn("no cache key configured; generating an ephemeral key, cached sessions will not survive restarts")
		key, err := randomKey(32)
		if err != nil {
			return nil, fmt.Errorf("generate cache key: %w", err)
		}
		opts.CacheKey = key
	}
	if len(opts.JWTSecret) == 0 {
		log.Warn("no JWT secret configured; generating an ephemeral secret, tokens will not survive restarts")
		secret, err := randomKey(32)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		opts.JWTSecret = secret
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}

	cacheCipher, err := vaultsvc.NewAESCipher(opts.CacheKey)
	if err != nil {
		return nil, fmt.Errorf("build cache cipher: %w", err)
	}

	vaultOpts := []vaultsvc.Option{}
	if opts.CacheTTL > 0 {
		vaultOpts = append(vaultOpts, vaultsvc.WithCacheTTL(opts.CacheTTL))
	}
	if opts.KDFIterations > 0 || opts.KDFWorkers > 0 {
		iterations := opts.KDFIterations
		if iterations <= 0 {
			iterations = vaultsvc.DefaultIterations
		}
		workers := opts.KDFWorkers
		if workers <= 0 {
			workers = vaultsvc.DefaultDeriveWorkers
		}
		vaultOpts = append(vaultOpts, vaultsvc.WithDeriver(vaultsvc.NewDeriver(iterations, workers)))
	}

	appl := &Application{
		log:       log,
		Auth:      authsvc.New(stores.Users, opts.JWTSecret, opts.TokenTTL, log),
		Providers: providersvc.New(stores.Providers, log),
		Vault: vaultsvc.New(stores.Users, stores.Providers, stores.Credentials,
			opts.Sessions, cacheCipher, log, vaultOpts...),
	}
	return appl, nil
}

func randomKey(n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
