// Package storage holds the shared configuration of the persistence backends.
//
// # Backends
//
//   - pkg/storage/postgres: primary/replica connection management and schema migrations
//   - pkg/storage/objects: S3-compatible storage for rendered contract documents
//   - pkg/storage/cache: Redis counters for per-cycle plan usage
//
// Each backend is constructed from a Config, usually built by pkg/config:
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = os.Getenv("DATABASE_URL")
//	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg))
package storage
