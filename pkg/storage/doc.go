// Package storage holds the connection settings shared by the durable and ephemeral
// stores, and the migration runner used by the postgres and rbac schemas.
//
// # Backends
//
//   - postgres: users, refresh tokens, devices and provider links. Every write an
//     account operation performs goes through one transaction.
//   - redis: logout invalidation markers, one key per user with the TTL of the
//     token it blocks.
//
// # Configuration
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = os.Getenv("AUTHSVC_POSTGRES_URL")
//
//	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg), logger)
//	rdb, err := redis.NewClient(ctx, cfg)
//
// # Migrations
//
// Each schema owner keeps its own bookkeeping table. rbac runs first because
// users reference roles:
//
//	rbac.RunMigrations(ctx, db)     // rbac_migrations
//	postgres.RunMigrations(ctx, db) // account_migrations
//
// # Testing
//
// Store methods are covered with go-sqlmock and miniredis. The integration build tag
// runs the postgres store against a real server in a testcontainers container.
package storage
