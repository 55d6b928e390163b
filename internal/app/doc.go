// Package app composes the chatvault services into a running application.
//
// It is a wiring layer, not a business logic layer: the credential vault,
// authentication, and provider catalog live in internal/app/services/, the
// persistence interfaces and implementations in internal/app/storage/, and
// the session cache in internal/app/cache/. New builds the service graph,
// defaulting any dependency the caller leaves nil to an in-memory
// implementation so tests and development servers need no external
// infrastructure.
//
//	internal/app/
//	├── application.go      # Application struct and wiring
//	├── domain/             # Domain models (pure data structures)
//	│   ├── user/           # Accounts with passphrase material
//	│   ├── provider/       # AI provider catalog entries
//	│   └── credential/     # Encrypted API key records
//	├── storage/            # Store interfaces, in-memory and postgres backends
//	├── cache/              # Session cache (in-memory and redis)
//	├── services/           # Vault, auth, and provider services
//	├── httpapi/            # HTTP handlers and routing
//	└── metrics/            # Prometheus instrumentation
package app
